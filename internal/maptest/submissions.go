package maptest

import (
	"fmt"
	"log"
	"path"
	"strings"
	"sync"
	"time"

	"maptest-backend/internal/config"
	"maptest-backend/internal/discord"
	"maptest-backend/internal/maps"
	"maptest-backend/internal/mapserver"
)

const mapExtension = ".map"
const dmDedupeWindow = 24 * time.Hour

// SubmissionHandler drives one submission message through
// VALIDATED -> UPLOADED -> PROCESSED, with the state mirrored as a single
// reaction glyph on the message.
type SubmissionHandler struct {
	gw       discord.Gateway
	manager  *Manager
	schedule Scheduler
	uploader *mapserver.Client
	thumbs   *mapserver.Thumbnailer

	intakeChannel   string
	announceChannel string
	testerRole      string
	types           config.ServerTypes

	mu     sync.Mutex
	dmSent map[string]time.Time
}

func NewSubmissionHandler(
	gw discord.Gateway,
	manager *Manager,
	schedule Scheduler,
	uploader *mapserver.Client,
	thumbs *mapserver.Thumbnailer,
	cfg *config.Config,
	types config.ServerTypes,
) *SubmissionHandler {
	return &SubmissionHandler{
		gw:              gw,
		manager:         manager,
		schedule:        schedule,
		uploader:        uploader,
		thumbs:          thumbs,
		intakeChannel:   cfg.IntakeChannelID,
		announceChannel: cfg.AnnounceChannelID,
		testerRole:      cfg.TesterRoleID,
		types:           types,
		dmSent:          make(map[string]time.Time),
	}
}

// OnMessage handles fresh messages: release announcements, intake
// submissions and re-submissions inside map channels.
func (h *SubmissionHandler) OnMessage(ev discord.MessageEvent) {
	if ev.Author.ID == h.gw.BotUserID() {
		return
	}
	if ev.ChannelID == h.announceChannel {
		h.manager.HandleReleaseMessage(ev)
		return
	}
	h.validate(ev)
}

// OnMessageEdit re-validates an edited submission unless it has already
// been processed; processed submissions are immutable.
func (h *SubmissionHandler) OnMessageEdit(ev discord.MessageEvent) {
	if ev.Author.ID == h.gw.BotUserID() {
		return
	}
	if h.currentState(ev.ChannelID, ev.ID) == maps.StateProcessed {
		return
	}
	h.validate(ev)
}

func (h *SubmissionHandler) validate(ev discord.MessageEvent) {
	att, ok := submissionAttachment(ev.Message)
	if !ok {
		return
	}

	inIntake := ev.ChannelID == h.intakeChannel
	mc, inMapChannel := h.manager.Registry().Get(ev.ChannelID)
	if !inIntake && !inMapChannel {
		return
	}

	baseName := strings.TrimSuffix(att.Filename, mapExtension)

	var err error
	if inIntake {
		err = h.validateIntake(ev.Content, baseName)
	} else if maps.Sanitize(baseName) != mc.SanitizedName() {
		err = fmt.Errorf("%w: this channel tests %q", maps.ErrNameMismatch, mc.Name)
	}

	if err != nil {
		h.setState(ev.ChannelID, ev.ID, maps.StateError)
		h.notifyAuthor(ev.Author.ID, err)
		return
	}
	h.setState(ev.ChannelID, ev.ID, maps.StateValidated)
}

func (h *SubmissionHandler) validateIntake(caption, baseName string) error {
	details, err := maps.ParseDetails(caption, baseName, h.types)
	if err != nil {
		return err
	}

	name := details.SanitizedName()
	if _, exists := h.manager.Registry().ByName(name); exists {
		return fmt.Errorf("%w: %q", maps.ErrDuplicateMap, details.Name)
	}
	released, err := h.schedule.IsReleased(name)
	if err != nil {
		return fmt.Errorf("released lookup: %w", err)
	}
	if released {
		return fmt.Errorf("%w: %q is already released", maps.ErrDuplicateMap, details.Name)
	}
	return nil
}

// OnReactionAdd promotes a validated submission when an authorized user
// reacts with the validated glyph.
func (h *SubmissionHandler) OnReactionAdd(ev discord.ReactionEvent) {
	if ev.UserID == h.gw.BotUserID() || ev.Emoji != maps.StateValidated.Glyph() {
		return
	}

	inIntake := ev.ChannelID == h.intakeChannel
	mc, inMapChannel := h.manager.Registry().Get(ev.ChannelID)
	if !inIntake && !inMapChannel {
		return
	}

	member, err := h.gw.Member(ev.UserID)
	if err != nil {
		log.Printf("[Submissions] member %s: %v", ev.UserID, err)
		return
	}
	if !h.authorized(member, mc, inMapChannel) {
		return
	}

	msg, err := h.gw.Message(ev.ChannelID, ev.MessageID)
	if err != nil {
		log.Printf("[Submissions] fetch message %s: %v", ev.MessageID, err)
		return
	}
	if stateOf(*msg) != maps.StateValidated {
		return
	}

	if !h.manager.Registry().TryAcquire(ev.MessageID) {
		return
	}
	defer h.manager.Registry().Release(ev.MessageID)

	if inIntake {
		h.promote(*msg)
	} else {
		h.reupload(*msg, mc)
	}
}

// authorized: staff anywhere; additionally the original mappers for
// updates inside their own channel.
func (h *SubmissionHandler) authorized(member *discord.User, mc *maps.MapChannel, inMapChannel bool) bool {
	for _, id := range member.RoleIDs {
		if id == h.testerRole {
			return true
		}
	}
	if inMapChannel && mc != nil {
		mention := "<@" + member.ID + ">"
		for _, m := range mc.MapperMentions {
			if m == mention {
				return true
			}
		}
	}
	return false
}

// promote uploads an intake submission and gives it its own channel.
func (h *SubmissionHandler) promote(msg discord.Message) {
	att, ok := submissionAttachment(msg)
	if !ok {
		return
	}
	baseName := strings.TrimSuffix(att.Filename, mapExtension)

	details, err := maps.ParseDetails(msg.Content, baseName, h.types)
	if err != nil {
		h.setState(msg.ChannelID, msg.ID, maps.StateError)
		h.notifyAuthor(msg.Author.ID, err)
		return
	}

	if !h.upload(msg, att, details.SanitizedName()) {
		return
	}

	mentions := []string{"<@" + msg.Author.ID + ">"}
	mc, err := h.manager.CreateMapChannel(details, mentions, []string{msg.Author.ID})
	if err != nil {
		log.Printf("[Submissions] promote %q: %v", details.Name, err)
		h.setState(msg.ChannelID, msg.ID, maps.StateError)
		h.manager.ModLog(fmt.Sprintf("⚠️ promoting %q failed: %v", details.Name, err))
		return
	}

	greeting := fmt.Sprintf("%s your map %q is now in testing. Testers will rate it here; position in queue: use $position.",
		strings.Join(mc.MapperMentions, " "), mc.Name)
	if _, err := h.gw.SendMessage(mc.ID, greeting); err != nil {
		log.Printf("[Submissions] greet %s: %v", mc.ID, err)
	}

	h.setState(msg.ChannelID, msg.ID, maps.StateProcessed)
}

// reupload pushes a new revision submitted inside an existing map channel.
func (h *SubmissionHandler) reupload(msg discord.Message, mc *maps.MapChannel) {
	att, ok := submissionAttachment(msg)
	if !ok {
		return
	}
	if !h.upload(msg, att, mc.SanitizedName()) {
		return
	}
	h.setState(msg.ChannelID, msg.ID, maps.StateProcessed)
}

// upload pushes the attachment to the hosting server. Failures flip the
// message to ERROR and are not retried; staff re-trigger by re-reacting.
func (h *SubmissionHandler) upload(msg discord.Message, att discord.Attachment, name string) bool {
	data, err := h.gw.Download(att.URL)
	if err != nil {
		log.Printf("[Submissions] download %s: %v", att.Filename, err)
		h.setState(msg.ChannelID, msg.ID, maps.StateError)
		h.manager.ModLog(fmt.Sprintf("⚠️ download of %q failed: %v", att.Filename, err))
		return false
	}

	if err := h.uploader.UploadMap(name, data); err != nil {
		log.Printf("[Submissions] upload %q: %v", name, err)
		h.setState(msg.ChannelID, msg.ID, maps.StateError)
		h.manager.ModLog(fmt.Sprintf("⚠️ upload of %q failed: %v", name, err))
		return false
	}

	h.setState(msg.ChannelID, msg.ID, maps.StateUploaded)
	if err := h.gw.PinMessage(msg.ChannelID, msg.ID); err != nil {
		log.Printf("[Submissions] pin %s: %v", msg.ID, err)
	}

	// thumbnail is decorative; a renderer failure never blocks the upload
	if h.thumbs != nil {
		if thumb, err := h.thumbs.Render(name, data); err != nil {
			log.Printf("[Submissions] thumbnail %q: %v", name, err)
		} else if err := h.uploader.UploadThumbnail(name, thumb); err != nil {
			log.Printf("[Submissions] thumbnail upload %q: %v", name, err)
		}
	}
	return true
}

// setState clears every reaction before adding the new glyph so at most
// one state glyph is ever present.
func (h *SubmissionHandler) setState(channelID, messageID string, state maps.SubmissionState) {
	if err := h.gw.ClearReactions(channelID, messageID); err != nil {
		log.Printf("[Submissions] clear reactions %s: %v", messageID, err)
	}
	if err := h.gw.AddReaction(channelID, messageID, state.Glyph()); err != nil {
		log.Printf("[Submissions] set state %s on %s: %v", state.Glyph(), messageID, err)
	}
}

func (h *SubmissionHandler) currentState(channelID, messageID string) maps.SubmissionState {
	msg, err := h.gw.Message(channelID, messageID)
	if err != nil {
		return maps.StateError
	}
	return stateOf(*msg)
}

// notifyAuthor DMs the submitter the validation failure, at most once per
// day for identical failures so rapid edits do not spam.
func (h *SubmissionHandler) notifyAuthor(userID string, cause error) {
	text := "Your map submission was rejected: " + cause.Error()
	key := userID + "\x00" + text

	h.mu.Lock()
	if at, ok := h.dmSent[key]; ok && time.Since(at) < dmDedupeWindow {
		h.mu.Unlock()
		return
	}
	h.dmSent[key] = time.Now()
	for k, at := range h.dmSent {
		if time.Since(at) >= dmDedupeWindow {
			delete(h.dmSent, k)
		}
	}
	h.mu.Unlock()

	if err := h.gw.SendDM(userID, text); err != nil {
		log.Printf("[Submissions] dm %s: %v", userID, err)
	}
}

// submissionAttachment returns the message's map file, requiring exactly
// one attachment with the reserved extension.
func submissionAttachment(msg discord.Message) (discord.Attachment, bool) {
	if len(msg.Attachments) != 1 {
		return discord.Attachment{}, false
	}
	att := msg.Attachments[0]
	if path.Ext(att.Filename) != mapExtension {
		return discord.Attachment{}, false
	}
	return att, true
}

// stateOf reads the single state glyph off the message's reactions.
func stateOf(msg discord.Message) maps.SubmissionState {
	for _, r := range msg.Reactions {
		if r.ID != "" {
			continue
		}
		if state, ok := maps.SubmissionStateFromGlyph(r.Name); ok {
			return state
		}
	}
	return maps.StateError
}
