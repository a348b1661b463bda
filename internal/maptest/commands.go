package maptest

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	"maptest-backend/internal/discord"
	"maptest-backend/internal/maps"
	"maptest-backend/internal/services"
)

// CommandHandler answers the $-prefixed commands inside map channels.
type CommandHandler struct {
	gw       discord.Gateway
	manager  *Manager
	ratings  Ratings
	schedule Scheduler

	testerRole      string
	weeklyBatchSize int
}

func NewCommandHandler(
	gw discord.Gateway,
	manager *Manager,
	ratings Ratings,
	schedule Scheduler,
	testerRole string,
	weeklyBatchSize int,
) *CommandHandler {
	return &CommandHandler{
		gw:              gw,
		manager:         manager,
		ratings:         ratings,
		schedule:        schedule,
		testerRole:      testerRole,
		weeklyBatchSize: weeklyBatchSize,
	}
}

// OnMessage dispatches commands. Anything that is not a command in a map
// channel is ignored here.
func (c *CommandHandler) OnMessage(ev discord.MessageEvent) {
	if !strings.HasPrefix(ev.Content, "$") {
		return
	}
	mc, ok := c.manager.Registry().Get(ev.ChannelID)
	if !ok {
		return
	}

	fields := strings.Fields(ev.Content)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "$rate":
		c.cmdRate(ev, mc, args)
	case "$ratings":
		c.cmdRatings(ev, mc)
	case "$position":
		c.cmdPosition(ev, mc)
	case "$update":
		c.cmdUpdate(ev, mc)
	case "$ready":
		c.cmdSetState(ev, mc, maps.MapReady)
	case "$decline":
		c.cmdSetState(ev, mc, maps.MapDeclined)
	case "$waiting":
		c.cmdSetState(ev, mc, maps.MapWaiting)
	case "$testing":
		c.cmdSetState(ev, mc, maps.MapTesting)
	}
}

func (c *CommandHandler) isTester(userID string) bool {
	member, err := c.gw.Member(userID)
	if err != nil {
		log.Printf("[Commands] member %s: %v", userID, err)
		return false
	}
	for _, id := range member.RoleIDs {
		if id == c.testerRole {
			return true
		}
	}
	return false
}

func (c *CommandHandler) reply(channelID, content string) {
	if _, err := c.gw.SendMessage(channelID, content); err != nil {
		log.Printf("[Commands] reply: %v", err)
	}
}

// cmdRate stores a tester's scores and re-runs the fast-track heuristic.
func (c *CommandHandler) cmdRate(ev discord.MessageEvent, mc *maps.MapChannel, args []string) {
	if !c.isTester(ev.Author.ID) {
		return
	}
	if len(args) == 0 {
		c.reply(ev.ChannelID, "usage: $rate <criterion>=<0..max> ...")
		return
	}

	scores := make(map[string]int, len(args))
	for _, arg := range args {
		parts := strings.SplitN(arg, "=", 2)
		if len(parts) != 2 {
			c.reply(ev.ChannelID, fmt.Sprintf("cannot read %q, expected <criterion>=<value>", arg))
			return
		}
		value, err := strconv.Atoi(parts[1])
		if err != nil {
			c.reply(ev.ChannelID, fmt.Sprintf("%q is not a number", parts[1]))
			return
		}
		scores[parts[0]] = value
	}

	if err := c.ratings.Submit(ev.ChannelID, ev.Author.ID, scores); err != nil {
		c.reply(ev.ChannelID, err.Error())
		return
	}
	if err := c.gw.AddReaction(ev.ChannelID, ev.ID, "👍"); err != nil {
		log.Printf("[Commands] ack rate: %v", err)
	}

	c.refreshJob(ev.ChannelID)
}

// refreshJob recomputes the aggregate and sets or clears the early
// processing date.
func (c *CommandHandler) refreshJob(channelID string) {
	agg, count, err := c.ratings.Aggregated(channelID, nil)
	if err != nil {
		log.Printf("[Commands] aggregate %s: %v", channelID, err)
		return
	}
	signal := services.EvaluateSignal(agg, count, c.ratings.Criteria())
	if err := c.schedule.AddJob(channelID, signal, timeNow()); err != nil {
		log.Printf("[Commands] add job %s: %v", channelID, err)
	}
}

func (c *CommandHandler) cmdRatings(ev discord.MessageEvent, mc *maps.MapChannel) {
	agg, count, err := c.ratings.Aggregated(ev.ChannelID, nil)
	if err != nil {
		log.Printf("[Commands] aggregate %s: %v", ev.ChannelID, err)
		return
	}
	var lines []string
	lines = append(lines, fmt.Sprintf("Ratings for %q (%d tester(s)):", mc.Name, count))
	for _, crit := range c.ratings.Criteria() {
		if v := agg[crit.Name]; v != nil {
			lines = append(lines, fmt.Sprintf("  %s: %d/%d", crit.Name, *v, crit.Max))
		} else {
			lines = append(lines, fmt.Sprintf("  %s: unrated", crit.Name))
		}
	}
	c.reply(ev.ChannelID, strings.Join(lines, "\n"))
}

func (c *CommandHandler) cmdPosition(ev discord.MessageEvent, mc *maps.MapChannel) {
	pos, err := c.schedule.Position(ev.ChannelID)
	if err != nil {
		log.Printf("[Commands] position %s: %v", ev.ChannelID, err)
		return
	}
	if pos == 0 {
		c.reply(ev.ChannelID, fmt.Sprintf("%q is not queued for evaluation.", mc.Name))
		return
	}
	weeks := (pos + c.weeklyBatchSize - 1) / c.weeklyBatchSize
	c.reply(ev.ChannelID, fmt.Sprintf("%q is at position %d, roughly %d week(s) until prioritized.", mc.Name, pos, weeks))
}

// cmdUpdate edits name/mappers/server from a fresh caption line. Testers
// or the channel's own mappers may do this.
func (c *CommandHandler) cmdUpdate(ev discord.MessageEvent, mc *maps.MapChannel) {
	caption := strings.TrimSpace(strings.TrimPrefix(ev.Content, "$update"))
	if !c.isTester(ev.Author.ID) && !isMapper(mc, ev.Author.ID) {
		return
	}

	details, err := maps.ParseDetailsLine(caption, c.manager.types)
	if err != nil {
		c.reply(ev.ChannelID, err.Error())
		return
	}

	if err := c.manager.UpdateChannel(mc, details.Name, details.Mappers, details.Server.Name); err != nil {
		c.reply(ev.ChannelID, err.Error())
		return
	}
	c.reply(ev.ChannelID, fmt.Sprintf("Updated: %s", mc.Details().Line()))
}

func (c *CommandHandler) cmdSetState(ev discord.MessageEvent, mc *maps.MapChannel, target maps.MapState) {
	if !c.isTester(ev.Author.ID) {
		return
	}
	if err := c.manager.SetState(mc, target); err != nil {
		c.reply(ev.ChannelID, err.Error())
		c.manager.ModLog(fmt.Sprintf("⚠️ moving %q to %s failed: %v", mc.Name, target, err))
		return
	}
	c.reply(ev.ChannelID, fmt.Sprintf("%q is now %s.", mc.Name, target))
}

func isMapper(mc *maps.MapChannel, userID string) bool {
	mention := "<@" + userID + ">"
	for _, m := range mc.MapperMentions {
		if m == mention {
			return true
		}
	}
	return false
}
