package maps

// SubmissionState is the lifecycle stage of one submission message,
// mirrored externally as a single reaction on the message.
type SubmissionState int

const (
	StateValidated SubmissionState = iota
	StateUploaded
	StateProcessed
	StateError
)

var submissionGlyphs = map[SubmissionState]string{
	StateValidated: "☑️",
	StateUploaded:  "🆙",
	StateProcessed: "✅",
	StateError:     "❌",
}

func (s SubmissionState) Glyph() string {
	return submissionGlyphs[s]
}

// SubmissionStateFromGlyph maps a reaction glyph back to a state. Unknown
// glyphs are rejected rather than ignored.
func SubmissionStateFromGlyph(glyph string) (SubmissionState, bool) {
	for state, g := range submissionGlyphs {
		if g == glyph {
			return state, true
		}
	}
	return 0, false
}

// MapState is the lifecycle stage of a map channel, encoded as the first
// glyph of the channel name. TESTING has no glyph.
type MapState int

const (
	MapTesting MapState = iota
	MapWaiting
	MapReady
	MapDeclined
	MapReleased
)

var mapGlyphs = map[MapState]string{
	MapTesting:  "",
	MapWaiting:  "💤",
	MapReady:    "✅",
	MapDeclined: "❌",
	MapReleased: "🆙",
}

func (s MapState) Glyph() string {
	return mapGlyphs[s]
}

func (s MapState) String() string {
	switch s {
	case MapTesting:
		return "testing"
	case MapWaiting:
		return "waiting"
	case MapReady:
		return "ready"
	case MapDeclined:
		return "declined"
	case MapReleased:
		return "released"
	}
	return "unknown"
}

// MapStateFromName extracts the state glyph from a channel name and returns
// the state plus the remainder of the name. A name starting with no known
// glyph is a TESTING channel.
func MapStateFromName(name string) (MapState, string) {
	for state, glyph := range mapGlyphs {
		if glyph != "" && len(name) >= len(glyph) && name[:len(glyph)] == glyph {
			return state, name[len(glyph):]
		}
	}
	return MapTesting, name
}
