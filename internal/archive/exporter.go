package archive

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"maptest-backend/internal/discord"
	"maptest-backend/internal/mapserver"
)

const historyPageSize = 100

// Asset is one binary referenced by a transcript, deduplicated by source
// id so each avatar/attachment/emoji is fetched and stored once.
type Asset struct {
	Type     string // avatar, attachment, emoji
	ID       string
	Filename string
	URL      string
}

// Exporter turns a channel into a transcript document plus its assets and
// pushes both to the archive endpoint. The channel may only be deleted
// after Export returns nil.
type Exporter struct {
	gw     discord.Gateway
	client *mapserver.Client

	mu    sync.Mutex
	users map[string]UserRef
}

func NewExporter(gw discord.Gateway, client *mapserver.Client) *Exporter {
	return &Exporter{gw: gw, client: client, users: make(map[string]UserRef)}
}

// Export serializes the full channel history and uploads the document and
// every referenced asset. Any failure aborts before anything is deleted;
// the next sweep recomputes the export from scratch, so retrying is safe.
func (e *Exporter) Export(channelID string) error {
	info, err := e.gw.Channel(channelID)
	if err != nil {
		return fmt.Errorf("fetch channel: %w", err)
	}

	history, err := e.fullHistory(channelID)
	if err != nil {
		return fmt.Errorf("fetch history: %w", err)
	}

	doc := Document{
		Protocol: Protocol{Version: ProtocolVersion},
		Name:     info.Name,
		Topic:    info.Topic,
	}

	assets := make(map[string]Asset)
	for _, msg := range history {
		doc.Messages = append(doc.Messages, BuildMessage(msg, e))
		e.collectAssets(msg, assets)
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}
	if err := e.client.Upload("log", "channel_name", info.Name, info.Name+".json", payload); err != nil {
		return fmt.Errorf("upload transcript: %w", err)
	}

	for _, asset := range assets {
		data, err := e.gw.Download(asset.URL)
		if err != nil {
			return fmt.Errorf("download %s %s: %w", asset.Type, asset.ID, err)
		}
		if err := e.client.Upload(asset.Type, "asset_id", asset.ID, asset.Filename, data); err != nil {
			return fmt.Errorf("upload %s %s: %w", asset.Type, asset.ID, err)
		}
	}

	log.Printf("[Exporter] archived %s (%d messages, %d assets)", info.Name, len(doc.Messages), len(assets))
	return nil
}

// fullHistory pages backwards until the channel start, oldest first.
func (e *Exporter) fullHistory(channelID string) ([]discord.Message, error) {
	var all []discord.Message
	before := ""
	for {
		page, err := e.gw.Messages(channelID, historyPageSize, before)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		all = append(all, page...)
		before = page[len(page)-1].ID
		if len(page) < historyPageSize {
			break
		}
	}
	// pages arrive newest first
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	return all, nil
}

func (e *Exporter) collectAssets(msg discord.Message, assets map[string]Asset) {
	if msg.Author.AvatarID != "" {
		if _, ok := assets["avatar:"+msg.Author.AvatarID]; !ok {
			assets["avatar:"+msg.Author.AvatarID] = Asset{
				Type:     "avatar",
				ID:       msg.Author.AvatarID,
				Filename: msg.Author.AvatarID + ".png",
				URL:      e.gw.AvatarURL(msg.Author),
			}
		}
	}
	for _, att := range msg.Attachments {
		if _, ok := assets["attachment:"+att.ID]; !ok {
			assets["attachment:"+att.ID] = Asset{
				Type:     "attachment",
				ID:       att.ID,
				Filename: att.Filename,
				URL:      att.URL,
			}
		}
	}
	for _, em := range messageEmojiIDs(msg.Content) {
		if _, ok := assets["emoji:"+em.ID]; !ok {
			assets["emoji:"+em.ID] = Asset{
				Type:     "emoji",
				ID:       em.ID,
				Filename: em.ID + ".png",
				URL:      e.gw.EmojiURL(em.ID),
			}
		}
	}
}

// Resolver implementation backed by the gateway, with a per-exporter user
// cache so each member is looked up once.

func (e *Exporter) ResolveUser(id string) UserRef {
	e.mu.Lock()
	if ref, ok := e.users[id]; ok {
		e.mu.Unlock()
		return ref
	}
	e.mu.Unlock()

	ref := UserRef{Name: "unknown", Roles: []string{}}
	if member, err := e.gw.Member(id); err == nil {
		ref = UserRef{
			Name:          member.Name,
			Discriminator: member.Discriminator,
			Avatar:        AvatarRef{ID: member.AvatarID},
			Roles:         member.Roles,
		}
		if ref.Roles == nil {
			ref.Roles = []string{}
		}
	}

	e.mu.Lock()
	e.users[id] = ref
	e.mu.Unlock()
	return ref
}

func (e *Exporter) ResolveChannel(id string) string {
	if info, err := e.gw.Channel(id); err == nil {
		return info.Name
	}
	return id
}

func (e *Exporter) ResolveRole(id string) string {
	if name := e.gw.RoleName(id); name != "" {
		return name
	}
	return id
}
