package maps

import (
	"errors"
	"fmt"
	"strings"

	"maptest-backend/internal/config"
)

var (
	ErrDuplicateMap     = errors.New("a map with this name is already in testing")
	ErrMalformedTopic   = errors.New("channel topic does not have the expected three lines")
	ErrMalformedDetails = errors.New("channel topic details line does not parse")
)

// MapChannel is the typed record behind one map's testing channel. The
// channel name and topic are rendered views of this record, re-parsed only
// on startup load.
type MapChannel struct {
	ID             string
	State          MapState
	Name           string
	Mappers        []string
	Server         config.ServerType
	MapperMentions []string

	previewBase string
}

// FromChannel rebuilds a record from a live channel's name and topic.
func FromChannel(id, channelName, topic, previewBase string, types config.ServerTypes) (*MapChannel, error) {
	lines := strings.Split(topic, "\n")
	if len(lines) != 3 {
		return nil, fmt.Errorf("%w: got %d lines", ErrMalformedTopic, len(lines))
	}

	details, err := ParseDetailsLine(lines[0], types)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrMalformedDetails, lines[0])
	}

	state, _ := MapStateFromName(channelName)

	return &MapChannel{
		ID:             id,
		State:          state,
		Name:           details.Name,
		Mappers:        details.Mappers,
		Server:         details.Server,
		MapperMentions: strings.Fields(lines[2]),
		previewBase:    previewBase,
	}, nil
}

// NewMapChannel builds the record for a freshly approved submission.
func NewMapChannel(details *Details, mentions []string, previewBase string) *MapChannel {
	return &MapChannel{
		State:          MapTesting,
		Name:           details.Name,
		Mappers:        details.Mappers,
		Server:         details.Server,
		MapperMentions: mentions,
		previewBase:    previewBase,
	}
}

// ChannelName renders state glyph + difficulty emoji + sanitized name.
func (mc *MapChannel) ChannelName() string {
	return mc.State.Glyph() + mc.Server.Emoji + Sanitize(mc.Name)
}

// Topic renders the three persistent lines: details, preview URL, mentions.
func (mc *MapChannel) Topic() string {
	return strings.Join([]string{
		mc.Details().Line(),
		mc.PreviewURL(),
		strings.Join(mc.MapperMentions, " "),
	}, "\n")
}

func (mc *MapChannel) Details() *Details {
	return &Details{Name: mc.Name, Mappers: mc.Mappers, Server: mc.Server}
}

func (mc *MapChannel) PreviewURL() string {
	return fmt.Sprintf("%s?map=%s", mc.previewBase, Sanitize(mc.Name))
}

func (mc *MapChannel) SanitizedName() string {
	return Sanitize(mc.Name)
}

// Update applies an edit to name, mappers and/or server. Nil/empty
// arguments leave the field alone. Returns whether the rendered views
// changed; on an invalid server type nothing is modified.
func (mc *MapChannel) Update(name string, mappers []string, server string, types config.ServerTypes) (bool, error) {
	st := mc.Server
	if server != "" {
		t, ok := types.Lookup(server)
		if !ok {
			return false, fmt.Errorf("%w: %q", ErrInvalidServerType, server)
		}
		st = t
	}

	before := mc.ChannelName() + "\n" + mc.Topic()

	if name != "" {
		mc.Name = name
	}
	if len(mappers) > 0 {
		mc.Mappers = mappers
	}
	mc.Server = st

	after := mc.ChannelName() + "\n" + mc.Topic()
	return before != after, nil
}
