package maptest

import (
	"testing"

	"maptest-backend/internal/config"
	"maptest-backend/internal/discord"
	"maptest-backend/internal/maps"
	"maptest-backend/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type commandFixture struct {
	handler  *CommandHandler
	manager  *Manager
	gw       *fakeGateway
	schedule *fakeScheduler
	ratings  *fakeRatings
	mc       *maps.MapChannel
}

func newCommandFixture(t *testing.T) *commandFixture {
	t.Helper()
	gw := newFakeGateway()
	schedule := newFakeScheduler()
	ratings := newFakeRatings()
	manager := NewManager(gw, NewRegistry(), schedule, testConfig(), config.DefaultServerTypes())

	mc, err := manager.CreateMapChannel(
		parsedDetails(t, `"Kobra 2" by Zerodin [Novice]`), []string{"<@42>"}, nil)
	require.NoError(t, err)

	gw.members["staff"] = &discord.User{ID: "staff", RoleIDs: []string{"tester"}}
	gw.members["42"] = &discord.User{ID: "42"}

	handler := NewCommandHandler(gw, manager, ratings, schedule, "tester", 3)
	return &commandFixture{handler: handler, manager: manager, gw: gw, schedule: schedule, ratings: ratings, mc: mc}
}

func (f *commandFixture) send(author, content string) {
	f.handler.OnMessage(discord.MessageEvent{Message: discord.Message{
		ID: "cmd", ChannelID: f.mc.ID, Author: discord.User{ID: author}, Content: content,
	}})
}

func TestCmdRate(t *testing.T) {
	f := newCommandFixture(t)

	f.send("staff", "$rate detail=9 design=8 flow=7")
	assert.Equal(t, map[string]int{"detail": 9, "design": 8, "flow": 7}, f.ratings.submitted[f.mc.ID+":staff"])
}

func TestCmdRateTriggersFastTrack(t *testing.T) {
	f := newCommandFixture(t)

	nine, ten := 9, 10
	f.ratings.agg = map[string]*int{"detail": &nine, "design": &ten, "flow": &nine}
	f.ratings.count = 3

	f.send("staff", "$rate detail=9 design=10 flow=9")
	assert.Equal(t, services.SignalPositive, f.schedule.jobs[f.mc.ID])
}

func TestCmdRateRejectsNonTesters(t *testing.T) {
	f := newCommandFixture(t)
	f.send("42", "$rate detail=9")
	assert.Empty(t, f.ratings.submitted)
}

func TestCmdRateBadInput(t *testing.T) {
	f := newCommandFixture(t)

	f.send("staff", "$rate detail")
	assert.Empty(t, f.ratings.submitted)
	require.NotEmpty(t, f.gw.sent)

	f.send("staff", "$rate detail=many")
	assert.Empty(t, f.ratings.submitted)
}

func TestCmdPosition(t *testing.T) {
	f := newCommandFixture(t)
	f.schedule.positions[f.mc.ID] = 4

	f.send("42", "$position")
	require.NotEmpty(t, f.gw.sent)
	last := f.gw.sent[len(f.gw.sent)-1]
	assert.Contains(t, last.Content, "position 4")
	assert.Contains(t, last.Content, "2 week(s)")
}

func TestCmdPositionNotQueued(t *testing.T) {
	f := newCommandFixture(t)
	f.send("42", "$position")
	last := f.gw.sent[len(f.gw.sent)-1]
	assert.Contains(t, last.Content, "not queued")
}

func TestCmdUpdateByMapper(t *testing.T) {
	f := newCommandFixture(t)

	f.send("42", `$update "Kobra 3" by Zerodin & Ama [Moderate]`)
	assert.Equal(t, "Kobra 3", f.mc.Name)
	assert.Equal(t, []string{"Zerodin", "Ama"}, f.mc.Mappers)
	assert.Equal(t, "Moderate", f.mc.Server.Name)
}

func TestCmdUpdateRejectsOutsiders(t *testing.T) {
	f := newCommandFixture(t)
	f.gw.members["rando"] = &discord.User{ID: "rando"}

	f.send("rando", `$update "Kobra 3" by Zerodin [Moderate]`)
	assert.Equal(t, "Kobra 2", f.mc.Name)
}

func TestCmdSetState(t *testing.T) {
	f := newCommandFixture(t)

	f.send("staff", "$waiting")
	assert.Equal(t, maps.MapWaiting, f.mc.State)

	// mappers cannot move states
	f.send("42", "$testing")
	assert.Equal(t, maps.MapWaiting, f.mc.State)

	f.send("staff", "$ready")
	assert.Equal(t, maps.MapReady, f.mc.State)
}

func TestCommandsIgnoredOutsideMapChannels(t *testing.T) {
	f := newCommandFixture(t)
	f.handler.OnMessage(discord.MessageEvent{Message: discord.Message{
		ID: "cmd", ChannelID: "general", Author: discord.User{ID: "staff"}, Content: "$position",
	}})
	assert.Empty(t, f.schedule.positions)
}
