package discord

import "time"

// User is the gateway-neutral view of a message author or member.
type User struct {
	ID            string
	Name          string
	Discriminator string
	AvatarID      string
	Bot           bool
	RoleIDs       []string
	Roles         []string // role names, resolved by the adapter
}

type Attachment struct {
	ID       string
	Filename string
	Size     int
	URL      string
}

type ReactionCount struct {
	Name  string
	ID    string
	Count int
}

type Message struct {
	ID          string
	ChannelID   string
	Author      User
	Content     string
	Timestamp   time.Time
	Attachments []Attachment
	Reactions   []ReactionCount
	Pinned      bool
}

type ChannelInfo struct {
	ID            string
	Name          string
	Topic         string
	ParentID      string
	Position      int
	LastMessageID string
}

// ChannelEdit carries the mutable channel fields; nil pointers are left
// untouched.
type ChannelEdit struct {
	Name     *string
	Topic    *string
	ParentID *string
	Position *int
}

type PermissionOverwrite struct {
	TargetID string
	IsRole   bool
	Allow    int64
	Deny     int64
}

// Gateway is the chat-platform surface the map-testing core consumes. The
// only concrete implementation talks to Discord; tests use fakes.
type Gateway interface {
	SendMessage(channelID, content string) (string, error)
	SendDM(userID, content string) error

	AddReaction(channelID, messageID, emoji string) error
	ClearReactions(channelID, messageID string) error
	PinMessage(channelID, messageID string) error

	CreateChannel(name, topic, parentID string, overwrites []PermissionOverwrite) (string, error)
	EditChannel(channelID string, edit ChannelEdit) error
	DeleteChannel(channelID string) error
	Channel(channelID string) (*ChannelInfo, error)
	ChannelsIn(categoryID string) ([]ChannelInfo, error)

	Message(channelID, messageID string) (*Message, error)
	Messages(channelID string, limit int, beforeID string) ([]Message, error)
	BotUserID() string
	Member(userID string) (*User, error)
	RoleName(roleID string) string
	Download(url string) ([]byte, error)
	EmojiURL(emojiID string) string
	AvatarURL(user User) string
}

// Event payloads delivered to the core's handlers.

type MessageEvent struct {
	Message
	Edited bool
}

type ReactionEvent struct {
	ChannelID string
	MessageID string
	UserID    string
	Emoji     string
}

type ChannelDeleteEvent struct {
	ChannelID string
	Name      string
	ParentID  string
}

// SnowflakeTime extracts the creation time embedded in a Discord id.
func SnowflakeTime(id string) time.Time {
	if id == "" {
		return time.Time{}
	}
	var n uint64
	for _, c := range id {
		if c < '0' || c > '9' {
			return time.Time{}
		}
		n = n*10 + uint64(c-'0')
	}
	const discordEpoch = 1420070400000 // ms
	return time.UnixMilli(int64(n>>22) + discordEpoch)
}

// Handlers is the set of callbacks the adapter dispatches into. Nil
// entries are skipped.
type Handlers struct {
	OnMessage       func(MessageEvent)
	OnMessageEdit   func(MessageEvent)
	OnReactionAdd   func(ReactionEvent)
	OnChannelDelete func(ChannelDeleteEvent)
}
