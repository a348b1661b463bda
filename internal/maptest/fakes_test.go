package maptest

import (
	"fmt"
	"sync"
	"time"

	"maptest-backend/internal/config"
	"maptest-backend/internal/discord"
	"maptest-backend/internal/models"
	"maptest-backend/internal/services"
)

var (
	_ discord.Gateway = (*fakeGateway)(nil)
	_ Scheduler       = (*fakeScheduler)(nil)
	_ Ratings         = (*fakeRatings)(nil)
)

type sentMessage struct {
	ChannelID string
	Content   string
}

// fakeGateway is an in-memory Gateway; reactions mutate the stored
// message so state reads observe prior writes.
type fakeGateway struct {
	mu sync.Mutex

	botID      string
	channels   map[string]*discord.ChannelInfo
	messages   map[string]*discord.Message // key channelID:messageID
	members    map[string]*discord.User
	downloads  map[string][]byte
	nextChanID int

	sent    []sentMessage
	dms     []sentMessage
	pinned  []string
	edits   map[string][]discord.ChannelEdit
	deleted []string

	editErr error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		botID:     "bot",
		channels:  make(map[string]*discord.ChannelInfo),
		messages:  make(map[string]*discord.Message),
		members:   make(map[string]*discord.User),
		downloads: make(map[string][]byte),
		edits:     make(map[string][]discord.ChannelEdit),
	}
}

func (f *fakeGateway) addChannel(id, name, topic, parentID string) {
	f.channels[id] = &discord.ChannelInfo{ID: id, Name: name, Topic: topic, ParentID: parentID}
}

func (f *fakeGateway) addMessage(msg discord.Message) {
	f.messages[msg.ChannelID+":"+msg.ID] = &msg
}

func (f *fakeGateway) reactions(channelID, messageID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.messages[channelID+":"+messageID]
	if !ok {
		return nil
	}
	var out []string
	for _, r := range msg.Reactions {
		out = append(out, r.Name)
	}
	return out
}

func (f *fakeGateway) SendMessage(channelID, content string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{channelID, content})
	return fmt.Sprintf("sent%d", len(f.sent)), nil
}

func (f *fakeGateway) SendDM(userID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dms = append(f.dms, sentMessage{userID, content})
	return nil
}

func (f *fakeGateway) AddReaction(channelID, messageID, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := f.messages[channelID+":"+messageID]; ok {
		msg.Reactions = append(msg.Reactions, discord.ReactionCount{Name: emoji, Count: 1})
	}
	return nil
}

func (f *fakeGateway) ClearReactions(channelID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := f.messages[channelID+":"+messageID]; ok {
		msg.Reactions = nil
	}
	return nil
}

func (f *fakeGateway) PinMessage(channelID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pinned = append(f.pinned, channelID+":"+messageID)
	return nil
}

func (f *fakeGateway) CreateChannel(name, topic, parentID string, overwrites []discord.PermissionOverwrite) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextChanID++
	id := fmt.Sprintf("chan%d", f.nextChanID)
	f.channels[id] = &discord.ChannelInfo{ID: id, Name: name, Topic: topic, ParentID: parentID}
	return id, nil
}

func (f *fakeGateway) EditChannel(channelID string, edit discord.ChannelEdit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.editErr != nil {
		return f.editErr
	}
	f.edits[channelID] = append(f.edits[channelID], edit)
	info, ok := f.channels[channelID]
	if !ok {
		return fmt.Errorf("no channel %s", channelID)
	}
	if edit.Name != nil {
		info.Name = *edit.Name
	}
	if edit.Topic != nil {
		info.Topic = *edit.Topic
	}
	if edit.ParentID != nil {
		info.ParentID = *edit.ParentID
	}
	return nil
}

func (f *fakeGateway) DeleteChannel(channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.channels, channelID)
	f.deleted = append(f.deleted, channelID)
	return nil
}

func (f *fakeGateway) Channel(channelID string) (*discord.ChannelInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.channels[channelID]
	if !ok {
		return nil, fmt.Errorf("no channel %s", channelID)
	}
	copied := *info
	return &copied, nil
}

func (f *fakeGateway) ChannelsIn(categoryID string) ([]discord.ChannelInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []discord.ChannelInfo
	for _, info := range f.channels {
		if info.ParentID == categoryID {
			out = append(out, *info)
		}
	}
	return out, nil
}

func (f *fakeGateway) Message(channelID, messageID string) (*discord.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.messages[channelID+":"+messageID]
	if !ok {
		return nil, fmt.Errorf("no message %s", messageID)
	}
	copied := *msg
	return &copied, nil
}

func (f *fakeGateway) Messages(channelID string, limit int, beforeID string) ([]discord.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if beforeID != "" {
		return nil, nil
	}
	var out []discord.Message
	for _, msg := range f.messages {
		if msg.ChannelID == channelID {
			out = append(out, *msg)
		}
	}
	return out, nil
}

func (f *fakeGateway) BotUserID() string { return f.botID }

func (f *fakeGateway) Member(userID string) (*discord.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	member, ok := f.members[userID]
	if !ok {
		return nil, fmt.Errorf("no member %s", userID)
	}
	copied := *member
	return &copied, nil
}

func (f *fakeGateway) RoleName(roleID string) string { return "role-" + roleID }

func (f *fakeGateway) Download(url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.downloads[url]
	if !ok {
		return nil, fmt.Errorf("no data at %s", url)
	}
	return data, nil
}

func (f *fakeGateway) EmojiURL(emojiID string) string { return "emoji://" + emojiID }

func (f *fakeGateway) AvatarURL(user discord.User) string { return "avatar://" + user.AvatarID }

type fakeScheduler struct {
	mu sync.Mutex

	active    map[string]bool
	joined    []string
	left      []string
	dropped   []string
	waiting   map[string]bool
	jobs      map[string]services.Signal
	positions map[string]int
	due       []models.ScheduleEntry
	dueErr    error
	dueCalls  []bool // weekly flag per Due call
	released  map[string]bool
	stale     []models.WaitingMap
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{
		active:    make(map[string]bool),
		waiting:   make(map[string]bool),
		jobs:      make(map[string]services.Signal),
		positions: make(map[string]int),
		released:  make(map[string]bool),
	}
}

// Join mirrors the real contract: a channel already in the queue is left
// alone, only a new or returning one counts as joined.
func (f *fakeScheduler) Join(channelID string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active[channelID] {
		return nil
	}
	f.active[channelID] = true
	f.joined = append(f.joined, channelID)
	return nil
}

func (f *fakeScheduler) Leave(channelID string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.active, channelID)
	f.left = append(f.left, channelID)
	return nil
}

func (f *fakeScheduler) Drop(channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.active, channelID)
	f.dropped = append(f.dropped, channelID)
	return nil
}

func (f *fakeScheduler) Position(channelID string) (int, error) {
	return f.positions[channelID], nil
}

func (f *fakeScheduler) AddJob(channelID string, signal services.Signal, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[channelID] = signal
	return nil
}

func (f *fakeScheduler) Due(now time.Time, weekly bool) ([]models.ScheduleEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dueCalls = append(f.dueCalls, weekly)
	if f.dueErr != nil {
		return nil, f.dueErr
	}
	return f.due, nil
}

func (f *fakeScheduler) MarkWaiting(channelID string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waiting[channelID] = true
	return nil
}

func (f *fakeScheduler) UnmarkWaiting(channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.waiting, channelID)
	return nil
}

func (f *fakeScheduler) StaleWaiting(now time.Time) ([]models.WaitingMap, error) {
	return f.stale, nil
}

func (f *fakeScheduler) IsReleased(name string) (bool, error) {
	return f.released[name], nil
}

type fakeRatings struct {
	mu sync.Mutex

	criteria  config.Criteria
	agg       models.ScoreMap
	count     int
	submitted map[string]map[string]int
	submitErr error
}

func newFakeRatings() *fakeRatings {
	return &fakeRatings{
		criteria:  config.DefaultCriteria(),
		agg:       models.ScoreMap{},
		submitted: make(map[string]map[string]int),
	}
}

func (f *fakeRatings) Submit(channelID, userID string, scores map[string]int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return f.submitErr
	}
	f.submitted[channelID+":"+userID] = scores
	return nil
}

func (f *fakeRatings) Get(channelID, userID string) (models.ScoreMap, error) {
	return models.ScoreMap{}, nil
}

func (f *fakeRatings) Aggregated(channelID string, raterIDs []string) (models.ScoreMap, int, error) {
	return f.agg, f.count, nil
}

func (f *fakeRatings) Criteria() config.Criteria { return f.criteria }
