package maps

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"maptest-backend/internal/config"
)

var (
	ErrCaptionFormat     = errors.New("caption must look like: \"<name>\" by <mapper> [<server type>]")
	ErrNameMismatch      = errors.New("map name does not match the uploaded filename")
	ErrInvalidServerType = errors.New("unknown server type")
)

var (
	detailsRe   = regexp.MustCompile(`^"(.+)" +by +(.+) +\[(.+)\]$`)
	mapperSep   = regexp.MustCompile(`\s*(?:,|&|\band\b)\s*`)
	sanitizeRe  = regexp.MustCompile(`[^a-z0-9_ ]`)
	collapseRe  = regexp.MustCompile(`\s+`)
)

// Sanitize normalizes a map name the same way the hosting server does:
// lowercase, special characters stripped, spaces collapsed to underscores.
func Sanitize(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = sanitizeRe.ReplaceAllString(s, "")
	s = collapseRe.ReplaceAllString(s, "_")
	return s
}

// Details is the parsed form of a submission caption.
type Details struct {
	Name    string
	Mappers []string
	Server  config.ServerType
}

// ParseDetails parses a submission caption and validates the map name
// against the uploaded file's base name.
func ParseDetails(caption, expectedBaseName string, types config.ServerTypes) (*Details, error) {
	d, err := ParseDetailsLine(caption, types)
	if err != nil {
		return nil, err
	}
	if Sanitize(d.Name) != Sanitize(expectedBaseName) {
		return nil, fmt.Errorf("%w: %q vs %q", ErrNameMismatch, d.Name, expectedBaseName)
	}
	return d, nil
}

// ParseDetailsLine parses a details line without the filename check, for
// places where no attachment exists (topic load, $update).
func ParseDetailsLine(caption string, types config.ServerTypes) (*Details, error) {
	m := detailsRe.FindStringSubmatch(strings.TrimSpace(caption))
	if m == nil {
		return nil, ErrCaptionFormat
	}

	st, ok := types.Lookup(m[3])
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidServerType, m[3])
	}

	return &Details{
		Name:    m[1],
		Mappers: SplitMappers(m[2]),
		Server:  st,
	}, nil
}

// SplitMappers splits a mapper list on ",", "&" and the word "and",
// greedily left to right. Names that themselves contain a separator token
// are split too; that is the documented behavior submitters rely on.
func SplitMappers(raw string) []string {
	var out []string
	for _, part := range mapperSep.Split(raw, -1) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Line renders the caption form of the details, the inverse of ParseDetails
// for mapper names free of separator tokens.
func (d *Details) Line() string {
	return fmt.Sprintf("\"%s\" by %s [%s]", d.Name, strings.Join(d.Mappers, " & "), d.Server.Name)
}

// SanitizedName is the name the hosting server and preview URLs use.
func (d *Details) SanitizedName() string {
	return Sanitize(d.Name)
}

// IsValidationError reports whether err is a submitter mistake rather than
// a service failure.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrCaptionFormat) ||
		errors.Is(err, ErrNameMismatch) ||
		errors.Is(err, ErrInvalidServerType) ||
		errors.Is(err, ErrDuplicateMap) ||
		errors.Is(err, ErrMalformedTopic) ||
		errors.Is(err, ErrMalformedDetails)
}
