package archive

import (
	"path"
	"regexp"
	"strings"
	"time"

	"maptest-backend/internal/discord"
)

// ProtocolVersion is bumped whenever the transcript layout changes; the
// archive reader dispatches on it.
const ProtocolVersion = 1

// Document is the serialized transcript of one channel. The key names and
// shape are fixed by the archive reader, do not rename fields.
type Document struct {
	Protocol Protocol     `json:"protocol"`
	Name     string       `json:"name"`
	Topic    string       `json:"topic"`
	Messages []MessageDoc `json:"messages"`
}

type Protocol struct {
	Version int `json:"version"`
}

type MessageDoc struct {
	Author    UserRef `json:"author"`
	Timestamp string  `json:"timestamp"`
	Content   []Chunk `json:"content"`
}

// Chunk is a tagged union: exactly one field is set per chunk.
type Chunk struct {
	Text           []string       `json:"text,omitempty"`
	Multiline      *CodeText      `json:"multiline-codeblock,omitempty"`
	Inline         *CodeText      `json:"inline-codeblock,omitempty"`
	CustomEmoji    *EmojiRef      `json:"custom-emoji,omitempty"`
	UserMention    *UserRef       `json:"user-mention,omitempty"`
	ChannelMention *MentionRef    `json:"channel-mention,omitempty"`
	RoleMention    *MentionRef    `json:"role-mention,omitempty"`
	Image          *ImageRef      `json:"image,omitempty"`
	Attachment     *AttachmentRef `json:"attachment,omitempty"`
	Reactions      []ReactionRef  `json:"reactions,omitempty"`
}

type CodeText struct {
	Text string `json:"text"`
}

type EmojiRef struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

type AvatarRef struct {
	ID string `json:"id"`
}

type UserRef struct {
	Name          string    `json:"name"`
	Discriminator string    `json:"discriminator"`
	Avatar        AvatarRef `json:"avatar"`
	Roles         []string  `json:"roles"`
}

type MentionRef struct {
	Name      string `json:"name"`
	Highlight bool   `json:"highlight"`
}

type ImageRef struct {
	ID        string `json:"id"`
	Basename  string `json:"basename"`
	Extension string `json:"extension"`
}

type AttachmentRef struct {
	ID            string `json:"id"`
	Basename      string `json:"basename"`
	Extension     string `json:"extension"`
	Filesize      int64  `json:"filesize"`
	FilesizeUnits string `json:"filesize-units"`
}

type ReactionRef struct {
	Emoji string `json:"emoji,omitempty"`
	Name  string `json:"name,omitempty"`
	ID    string `json:"id,omitempty"`
	Count int    `json:"count"`
}

var (
	multilineRe = regexp.MustCompile("(?s)```(?:[a-zA-Z0-9]*\n)?(.*?)```")
	inlineRe    = regexp.MustCompile("`([^`\n]+)`")
	emojiRe     = regexp.MustCompile(`<a?:([A-Za-z0-9_~]+):([0-9]+)>`)
	userRe      = regexp.MustCompile(`<@!?([0-9]+)>`)
	channelRe   = regexp.MustCompile(`<#([0-9]+)>`)
	roleRe      = regexp.MustCompile(`<@&([0-9]+)>`)
)

// Resolver turns raw mention ids into display data; the gateway adapter
// satisfies it via a thin wrapper in the exporter.
type Resolver interface {
	ResolveUser(id string) UserRef
	ResolveChannel(id string) string
	ResolveRole(id string) string
}

type markerKind int

const (
	kindMultiline markerKind = iota
	kindInline
	kindEmoji
	kindUser
	kindChannel
	kindRole
)

type marker struct {
	kind       markerKind
	start, end int
	groups     []string
}

// ParseContent splits raw message text into transcript chunks, scanning
// for the earliest marker left to right.
func ParseContent(raw string, r Resolver) []Chunk {
	var chunks []Chunk

	patterns := []struct {
		kind markerKind
		re   *regexp.Regexp
	}{
		{kindMultiline, multilineRe},
		{kindInline, inlineRe},
		{kindEmoji, emojiRe},
		{kindUser, userRe},
		{kindChannel, channelRe},
		{kindRole, roleRe},
	}

	for raw != "" {
		var next *marker
		for _, p := range patterns {
			loc := p.re.FindStringSubmatchIndex(raw)
			if loc == nil {
				continue
			}
			if next == nil || loc[0] < next.start {
				m := &marker{kind: p.kind, start: loc[0], end: loc[1]}
				for g := 1; g*2 < len(loc); g++ {
					if loc[g*2] >= 0 {
						m.groups = append(m.groups, raw[loc[g*2]:loc[g*2+1]])
					}
				}
				next = m
			}
		}

		if next == nil {
			chunks = appendText(chunks, raw)
			break
		}
		if next.start > 0 {
			chunks = appendText(chunks, raw[:next.start])
		}

		switch next.kind {
		case kindMultiline:
			chunks = append(chunks, Chunk{Multiline: &CodeText{Text: next.groups[0]}})
		case kindInline:
			chunks = append(chunks, Chunk{Inline: &CodeText{Text: next.groups[0]}})
		case kindEmoji:
			chunks = append(chunks, Chunk{CustomEmoji: &EmojiRef{Name: next.groups[0], ID: next.groups[1]}})
		case kindUser:
			user := r.ResolveUser(next.groups[0])
			chunks = append(chunks, Chunk{UserMention: &user})
		case kindChannel:
			chunks = append(chunks, Chunk{ChannelMention: &MentionRef{Name: r.ResolveChannel(next.groups[0]), Highlight: true}})
		case kindRole:
			chunks = append(chunks, Chunk{RoleMention: &MentionRef{Name: r.ResolveRole(next.groups[0]), Highlight: true}})
		}
		raw = raw[next.end:]
	}

	return chunks
}

func appendText(chunks []Chunk, text string) []Chunk {
	if text == "" {
		return chunks
	}
	if n := len(chunks); n > 0 && chunks[n-1].Text != nil {
		chunks[n-1].Text = append(chunks[n-1].Text, text)
		return chunks
	}
	return append(chunks, Chunk{Text: []string{text}})
}

// BuildMessage renders one gateway message into its transcript form plus
// the asset references it pulls in.
func BuildMessage(msg discord.Message, r Resolver) MessageDoc {
	doc := MessageDoc{
		Author:    r.ResolveUser(msg.Author.ID),
		Timestamp: msg.Timestamp.UTC().Format(time.RFC3339),
		Content:   ParseContent(msg.Content, r),
	}

	for _, att := range msg.Attachments {
		ext := strings.TrimPrefix(path.Ext(att.Filename), ".")
		base := strings.TrimSuffix(att.Filename, path.Ext(att.Filename))
		if isImageExt(ext) {
			doc.Content = append(doc.Content, Chunk{Image: &ImageRef{
				ID: att.ID, Basename: base, Extension: ext,
			}})
		} else {
			size, units := humanSize(int64(att.Size))
			doc.Content = append(doc.Content, Chunk{Attachment: &AttachmentRef{
				ID: att.ID, Basename: base, Extension: ext,
				Filesize: size, FilesizeUnits: units,
			}})
		}
	}

	if len(msg.Reactions) > 0 {
		var refs []ReactionRef
		for _, re := range msg.Reactions {
			if re.ID == "" {
				refs = append(refs, ReactionRef{Emoji: re.Name, Count: re.Count})
			} else {
				refs = append(refs, ReactionRef{Name: re.Name, ID: re.ID, Count: re.Count})
			}
		}
		doc.Content = append(doc.Content, Chunk{Reactions: refs})
	}

	return doc
}

func isImageExt(ext string) bool {
	switch strings.ToLower(ext) {
	case "png", "jpg", "jpeg", "gif", "webp":
		return true
	}
	return false
}

func humanSize(bytes int64) (int64, string) {
	switch {
	case bytes >= 1<<20:
		return bytes / (1 << 20), "MB"
	case bytes >= 1<<10:
		return bytes / (1 << 10), "KB"
	}
	return bytes, "B"
}

// emoji ids referenced by a message, for the asset side-table
func messageEmojiIDs(content string) []EmojiRef {
	var out []EmojiRef
	for _, m := range emojiRe.FindAllStringSubmatch(content, -1) {
		out = append(out, EmojiRef{Name: m[1], ID: m[2]})
	}
	return out
}
