package discord

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Session adapts a discordgo session to the Gateway interface for one
// guild.
type Session struct {
	dg      *discordgo.Session
	guildID string
	http    *http.Client

	mu    sync.RWMutex
	roles map[string]string // role id -> name
}

func NewSession(token, guildID string) (*Session, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	return &Session{
		dg:      dg,
		guildID: guildID,
		http:    &http.Client{Timeout: 30 * time.Second},
		roles:   make(map[string]string),
	}, nil
}

// Open connects the gateway and registers the core's event handlers. Each
// event runs in its own goroutine, mirroring how per-message work is
// independent.
func (s *Session) Open(h Handlers) error {
	s.dg.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		if m.GuildID != s.guildID || h.OnMessage == nil {
			return
		}
		go h.OnMessage(MessageEvent{Message: convertMessage(m.Message)})
	})
	s.dg.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageUpdate) {
		if m.GuildID != s.guildID || h.OnMessageEdit == nil || m.Author == nil {
			return
		}
		go h.OnMessageEdit(MessageEvent{Message: convertMessage(m.Message), Edited: true})
	})
	s.dg.AddHandler(func(_ *discordgo.Session, r *discordgo.MessageReactionAdd) {
		if r.GuildID != s.guildID || h.OnReactionAdd == nil {
			return
		}
		go h.OnReactionAdd(ReactionEvent{
			ChannelID: r.ChannelID,
			MessageID: r.MessageID,
			UserID:    r.UserID,
			Emoji:     r.Emoji.Name,
		})
	})
	s.dg.AddHandler(func(_ *discordgo.Session, c *discordgo.ChannelDelete) {
		if c.GuildID != s.guildID || h.OnChannelDelete == nil {
			return
		}
		go h.OnChannelDelete(ChannelDeleteEvent{
			ChannelID: c.ID,
			Name:      c.Name,
			ParentID:  c.ParentID,
		})
	})

	if err := s.dg.Open(); err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}
	s.loadRoles()
	return nil
}

func (s *Session) Close() error {
	return s.dg.Close()
}

func (s *Session) loadRoles() {
	roles, err := s.dg.GuildRoles(s.guildID)
	if err != nil {
		log.Printf("[Discord] load roles: %v", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range roles {
		s.roles[r.ID] = r.Name
	}
}

func (s *Session) SendMessage(channelID, content string) (string, error) {
	msg, err := s.dg.ChannelMessageSend(channelID, content)
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

func (s *Session) SendDM(userID, content string) error {
	ch, err := s.dg.UserChannelCreate(userID)
	if err != nil {
		return err
	}
	_, err = s.dg.ChannelMessageSend(ch.ID, content)
	return err
}

func (s *Session) AddReaction(channelID, messageID, emoji string) error {
	return s.dg.MessageReactionAdd(channelID, messageID, emoji)
}

func (s *Session) ClearReactions(channelID, messageID string) error {
	return s.dg.MessageReactionsRemoveAll(channelID, messageID)
}

func (s *Session) PinMessage(channelID, messageID string) error {
	return s.dg.ChannelMessagePin(channelID, messageID)
}

func (s *Session) CreateChannel(name, topic, parentID string, overwrites []PermissionOverwrite) (string, error) {
	var po []*discordgo.PermissionOverwrite
	for _, o := range overwrites {
		t := discordgo.PermissionOverwriteTypeMember
		if o.IsRole {
			t = discordgo.PermissionOverwriteTypeRole
		}
		po = append(po, &discordgo.PermissionOverwrite{
			ID:    o.TargetID,
			Type:  t,
			Allow: o.Allow,
			Deny:  o.Deny,
		})
	}
	ch, err := s.dg.GuildChannelCreateComplex(s.guildID, discordgo.GuildChannelCreateData{
		Name:                 name,
		Type:                 discordgo.ChannelTypeGuildText,
		Topic:                topic,
		ParentID:             parentID,
		PermissionOverwrites: po,
	})
	if err != nil {
		return "", err
	}
	return ch.ID, nil
}

func (s *Session) EditChannel(channelID string, edit ChannelEdit) error {
	current := 0
	if edit.Position == nil {
		ch, err := s.dg.Channel(channelID)
		if err != nil {
			return fmt.Errorf("fetch channel for edit: %w", err)
		}
		current = ch.Position
	}
	_, err := s.dg.ChannelEditComplex(channelID, convertEdit(edit, current))
	return err
}

// convertEdit maps an edit onto the discordgo struct. The REST payload
// always carries a position, so an edit with no intended move must repeat
// the channel's current one.
func convertEdit(edit ChannelEdit, currentPosition int) *discordgo.ChannelEdit {
	e := &discordgo.ChannelEdit{Position: currentPosition}
	if edit.Name != nil {
		e.Name = *edit.Name
	}
	if edit.Topic != nil {
		e.Topic = *edit.Topic
	}
	if edit.ParentID != nil {
		e.ParentID = *edit.ParentID
	}
	if edit.Position != nil {
		e.Position = *edit.Position
	}
	return e
}

func (s *Session) DeleteChannel(channelID string) error {
	_, err := s.dg.ChannelDelete(channelID)
	return err
}

func (s *Session) Channel(channelID string) (*ChannelInfo, error) {
	ch, err := s.dg.Channel(channelID)
	if err != nil {
		return nil, err
	}
	info := convertChannel(ch)
	return &info, nil
}

func (s *Session) ChannelsIn(categoryID string) ([]ChannelInfo, error) {
	all, err := s.dg.GuildChannels(s.guildID)
	if err != nil {
		return nil, err
	}
	var out []ChannelInfo
	for _, ch := range all {
		if ch.ParentID == categoryID && ch.Type == discordgo.ChannelTypeGuildText {
			out = append(out, convertChannel(ch))
		}
	}
	return out, nil
}

func (s *Session) Message(channelID, messageID string) (*Message, error) {
	m, err := s.dg.ChannelMessage(channelID, messageID)
	if err != nil {
		return nil, err
	}
	msg := convertMessage(m)
	return &msg, nil
}

func (s *Session) BotUserID() string {
	if s.dg.State != nil && s.dg.State.User != nil {
		return s.dg.State.User.ID
	}
	return ""
}

func (s *Session) Messages(channelID string, limit int, beforeID string) ([]Message, error) {
	msgs, err := s.dg.ChannelMessages(channelID, limit, beforeID, "", "")
	if err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, convertMessage(m))
	}
	return out, nil
}

func (s *Session) Member(userID string) (*User, error) {
	m, err := s.dg.GuildMember(s.guildID, userID)
	if err != nil {
		return nil, err
	}
	u := convertUser(m.User)
	u.RoleIDs = append([]string{}, m.Roles...)
	s.mu.RLock()
	for _, id := range m.Roles {
		if name, ok := s.roles[id]; ok {
			u.Roles = append(u.Roles, name)
		}
	}
	s.mu.RUnlock()
	return &u, nil
}

func (s *Session) RoleName(roleID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roles[roleID]
}

func (s *Session) Download(url string) ([]byte, error) {
	resp, err := s.http.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (s *Session) EmojiURL(emojiID string) string {
	return discordgo.EndpointEmoji(emojiID)
}

func (s *Session) AvatarURL(user User) string {
	if user.AvatarID == "" {
		return ""
	}
	return discordgo.EndpointUserAvatar(user.ID, user.AvatarID)
}

func convertChannel(ch *discordgo.Channel) ChannelInfo {
	return ChannelInfo{
		ID:            ch.ID,
		Name:          ch.Name,
		Topic:         ch.Topic,
		ParentID:      ch.ParentID,
		Position:      ch.Position,
		LastMessageID: ch.LastMessageID,
	}
}

func convertMessage(m *discordgo.Message) Message {
	msg := Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		Content:   m.Content,
		Timestamp: m.Timestamp,
		Pinned:    m.Pinned,
	}
	if m.Author != nil {
		msg.Author = convertUser(m.Author)
	}
	for _, a := range m.Attachments {
		msg.Attachments = append(msg.Attachments, Attachment{
			ID:       a.ID,
			Filename: a.Filename,
			Size:     a.Size,
			URL:      a.URL,
		})
	}
	for _, r := range m.Reactions {
		msg.Reactions = append(msg.Reactions, ReactionCount{
			Name:  r.Emoji.Name,
			ID:    r.Emoji.ID,
			Count: r.Count,
		})
	}
	return msg
}

func convertUser(u *discordgo.User) User {
	return User{
		ID:            u.ID,
		Name:          u.Username,
		Discriminator: u.Discriminator,
		AvatarID:      u.Avatar,
		Bot:           u.Bot,
	}
}
