package archive

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"maptest-backend/internal/config"
	"maptest-backend/internal/discord"
	"maptest-backend/internal/mapserver"
	"maptest-backend/internal/maps"
	"maptest-backend/internal/maptest"
	"maptest-backend/internal/models"
	"maptest-backend/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGateway struct {
	mu       sync.Mutex
	channels map[string]*discord.ChannelInfo
	history  map[string][]discord.Message
	deleted  []string
}

var _ discord.Gateway = (*stubGateway)(nil)

func newStubGateway() *stubGateway {
	return &stubGateway{
		channels: make(map[string]*discord.ChannelInfo),
		history:  make(map[string][]discord.Message),
	}
}

func (s *stubGateway) SendMessage(channelID, content string) (string, error) { return "id", nil }
func (s *stubGateway) SendDM(userID, content string) error                   { return nil }
func (s *stubGateway) AddReaction(channelID, messageID, emoji string) error  { return nil }
func (s *stubGateway) ClearReactions(channelID, messageID string) error      { return nil }
func (s *stubGateway) PinMessage(channelID, messageID string) error          { return nil }

func (s *stubGateway) CreateChannel(name, topic, parentID string, overwrites []discord.PermissionOverwrite) (string, error) {
	return "", fmt.Errorf("not supported")
}

func (s *stubGateway) EditChannel(channelID string, edit discord.ChannelEdit) error { return nil }

func (s *stubGateway) DeleteChannel(channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, channelID)
	delete(s.channels, channelID)
	return nil
}

func (s *stubGateway) Channel(channelID string) (*discord.ChannelInfo, error) {
	if info, ok := s.channels[channelID]; ok {
		copied := *info
		return &copied, nil
	}
	return nil, fmt.Errorf("no channel %s", channelID)
}

func (s *stubGateway) ChannelsIn(categoryID string) ([]discord.ChannelInfo, error) { return nil, nil }

func (s *stubGateway) Message(channelID, messageID string) (*discord.Message, error) {
	return nil, fmt.Errorf("no message")
}

func (s *stubGateway) Messages(channelID string, limit int, beforeID string) ([]discord.Message, error) {
	if beforeID != "" {
		return nil, nil
	}
	return s.history[channelID], nil
}

func (s *stubGateway) BotUserID() string { return "bot" }

func (s *stubGateway) Member(userID string) (*discord.User, error) {
	return &discord.User{ID: userID, Name: "user" + userID, Roles: []string{}}, nil
}

func (s *stubGateway) RoleName(roleID string) string { return "role-" + roleID }

func (s *stubGateway) Download(url string) ([]byte, error) { return []byte("data"), nil }

func (s *stubGateway) EmojiURL(emojiID string) string { return "emoji://" + emojiID }

func (s *stubGateway) AvatarURL(u discord.User) string { return "avatar://" + u.AvatarID }

type stubScheduler struct {
	stale    []models.WaitingMap
	dropped  []string
	unmarked []string
}

var _ maptest.Scheduler = (*stubScheduler)(nil)

func (s *stubScheduler) Join(channelID string, now time.Time) error  { return nil }
func (s *stubScheduler) Leave(channelID string, now time.Time) error { return nil }

func (s *stubScheduler) Drop(channelID string) error {
	s.dropped = append(s.dropped, channelID)
	return nil
}

func (s *stubScheduler) Position(channelID string) (int, error) { return 0, nil }

func (s *stubScheduler) AddJob(channelID string, signal services.Signal, now time.Time) error {
	return nil
}

func (s *stubScheduler) Due(now time.Time, weekly bool) ([]models.ScheduleEntry, error) {
	return nil, nil
}

func (s *stubScheduler) MarkWaiting(channelID string, now time.Time) error { return nil }

func (s *stubScheduler) UnmarkWaiting(channelID string) error {
	s.unmarked = append(s.unmarked, channelID)
	return nil
}

func (s *stubScheduler) StaleWaiting(now time.Time) ([]models.WaitingMap, error) {
	return s.stale, nil
}

func (s *stubScheduler) IsReleased(name string) (bool, error) { return false, nil }

func snowflakeAt(ts time.Time) string {
	return fmt.Sprintf("%d", (ts.UnixMilli()-1420070400000)<<22)
}

type sweepFixture struct {
	sweeper  *Sweeper
	gw       *stubGateway
	schedule *stubScheduler
	manager  *maptest.Manager
	uploads  *[]string
}

func newSweepFixture(t *testing.T, archiveStatus int) *sweepFixture {
	t.Helper()
	gw := newStubGateway()
	schedule := &stubScheduler{}
	cfg := &config.Config{
		AnnounceChannelID:   "announce",
		TestingCategories:   []string{"cat-testing"},
		WaitingCategories:   []string{"cat-waiting"},
		EvaluatedCategories: []string{"cat-evaluated"},
		PreviewBaseURL:      "https://preview.example/",
		CategoryLimit:       50,
	}
	manager := maptest.NewManager(gw, maptest.NewRegistry(), schedule, cfg, config.DefaultServerTypes())

	uploads := &[]string{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		*uploads = append(*uploads, r.FormValue("asset_type")+":"+r.FormValue("channel_name")+r.FormValue("asset_id"))
		if archiveStatus != http.StatusOK {
			w.WriteHeader(archiveStatus)
		}
	}))
	t.Cleanup(srv.Close)

	archiveClient := mapserver.NewClient(srv.URL, "t")
	hostSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	t.Cleanup(hostSrv.Close)

	exporter := NewExporter(gw, archiveClient)
	sweeper := NewSweeper(gw, manager, schedule, exporter, mapserver.NewClient(hostSrv.URL, "t"), "announce")
	return &sweepFixture{sweeper: sweeper, gw: gw, schedule: schedule, manager: manager, uploads: uploads}
}

func (f *sweepFixture) addMapChannel(t *testing.T, id, name string, state maps.MapState, lastMessageAt time.Time) *maps.MapChannel {
	t.Helper()
	d, err := maps.ParseDetailsLine(fmt.Sprintf("%q by Zerodin [Novice]", name), config.DefaultServerTypes())
	require.NoError(t, err)
	mc := maps.NewMapChannel(d, []string{"<@42>"}, "https://preview.example/")
	mc.ID = id
	mc.State = state
	f.manager.Registry().Put(mc)

	lastID := ""
	if !lastMessageAt.IsZero() {
		lastID = snowflakeAt(lastMessageAt)
	}
	f.gw.channels[id] = &discord.ChannelInfo{
		ID: id, Name: mc.ChannelName(), Topic: mc.Topic(), LastMessageID: lastID,
	}
	return mc
}

func TestSweepArchivesIdleEvaluatedChannels(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	f := newSweepFixture(t, http.StatusOK)
	f.addMapChannel(t, "c1", "Kobra 2", maps.MapDeclined, now.Add(-10*24*time.Hour))

	f.sweeper.Sweep(now)

	assert.Equal(t, []string{"c1"}, f.gw.deleted)
	require.NotEmpty(t, *f.uploads)
	assert.Equal(t, "log:❌👶kobra_2", (*f.uploads)[0])
}

func TestSweepSkipsTestingAndReady(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	f := newSweepFixture(t, http.StatusOK)
	f.addMapChannel(t, "c1", "Kobra 2", maps.MapTesting, now.Add(-30*24*time.Hour))
	f.addMapChannel(t, "c2", "Linear", maps.MapReady, now.Add(-30*24*time.Hour))

	f.sweeper.Sweep(now)
	assert.Empty(t, f.gw.deleted)
}

func TestSweepSkipsRecentActivity(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	f := newSweepFixture(t, http.StatusOK)
	f.addMapChannel(t, "c1", "Kobra 2", maps.MapDeclined, now.Add(-2*24*time.Hour))

	f.sweeper.Sweep(now)
	assert.Empty(t, f.gw.deleted)
}

func TestSweepSkipsFreshReleases(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	f := newSweepFixture(t, http.StatusOK)
	f.addMapChannel(t, "c1", "Kobra 2", maps.MapReleased, now.Add(-10*24*time.Hour))

	f.gw.history["announce"] = []discord.Message{{
		ID:        "a1",
		ChannelID: "announce",
		Content:   "New map! https://preview.example/?map=kobra_2",
		Timestamp: now.Add(-24 * time.Hour),
	}}

	f.sweeper.Sweep(now)
	assert.Empty(t, f.gw.deleted)

	// past the grace window the channel goes
	f.sweeper.Sweep(now.Add(4 * 24 * time.Hour))
	assert.Equal(t, []string{"c1"}, f.gw.deleted)
}

func TestSweepEvictsStaleWaitingRoomsDespiteActivity(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	f := newSweepFixture(t, http.StatusOK)
	f.addMapChannel(t, "c1", "Kobra 2", maps.MapWaiting, now.Add(-time.Hour))
	f.schedule.stale = []models.WaitingMap{{ChannelID: "c1"}}

	f.sweeper.Sweep(now)
	assert.Equal(t, []string{"c1"}, f.gw.deleted)
}

func TestSweepKeepsChannelWhenExportFails(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	f := newSweepFixture(t, http.StatusInternalServerError)
	f.addMapChannel(t, "c1", "Kobra 2", maps.MapDeclined, now.Add(-10*24*time.Hour))

	f.sweeper.Sweep(now)
	assert.Empty(t, f.gw.deleted)

	_, ok := f.manager.Registry().Get("c1")
	assert.True(t, ok)
}

func TestOnChannelDeleteCleansUp(t *testing.T) {
	f := newSweepFixture(t, http.StatusOK)
	f.addMapChannel(t, "c1", "Kobra 2", maps.MapWaiting, time.Time{})

	f.sweeper.OnChannelDelete(discord.ChannelDeleteEvent{ChannelID: "c1"})

	_, ok := f.manager.Registry().Get("c1")
	assert.False(t, ok)
	assert.Equal(t, []string{"c1"}, f.schedule.dropped)
	assert.Equal(t, []string{"c1"}, f.schedule.unmarked)

	// unknown channels are ignored
	f.sweeper.OnChannelDelete(discord.ChannelDeleteEvent{ChannelID: "nope"})
	assert.Len(t, f.schedule.dropped, 1)
}

func TestExportBuildsTranscript(t *testing.T) {
	f := newSweepFixture(t, http.StatusOK)
	f.gw.channels["c1"] = &discord.ChannelInfo{ID: "c1", Name: "kobra_2", Topic: "topic"}
	f.gw.history["c1"] = []discord.Message{
		{ID: "m2", ChannelID: "c1", Author: discord.User{ID: "42"}, Content: "newer"},
		{ID: "m1", ChannelID: "c1", Author: discord.User{ID: "42"}, Content: "older"},
	}

	require.NoError(t, f.sweeper.exporter.Export("c1"))
	assert.Equal(t, []string{"log:kobra_2"}, *f.uploads)
}
