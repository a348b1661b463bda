package config

import "strings"

// ServerType is one entry of the configured difficulty/category table.
type ServerType struct {
	Name  string
	Emoji string
}

type ServerTypes []ServerType

func (st ServerTypes) Lookup(name string) (ServerType, bool) {
	for _, t := range st {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return ServerType{}, false
}

func DefaultServerTypes() ServerTypes {
	return ServerTypes{
		{Name: "Novice", Emoji: "👶"},
		{Name: "Moderate", Emoji: "🌸"},
		{Name: "Brutal", Emoji: "💪"},
		{Name: "Insane", Emoji: "💀"},
		{Name: "Dummy", Emoji: "🤖"},
		{Name: "Oldschool", Emoji: "👴"},
		{Name: "Solo", Emoji: "⚡"},
		{Name: "Race", Emoji: "🏁"},
	}
}

// Criterion is one named rating dimension with its score ceiling and the
// minimum a map needs on it to be approved.
type Criterion struct {
	Name     string
	Max      int
	Required int
}

type Criteria []Criterion

func (cr Criteria) Lookup(name string) (Criterion, bool) {
	for _, c := range cr {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Criterion{}, false
}

func (cr Criteria) RequiredTotal() int {
	total := 0
	for _, c := range cr {
		total += c.Required
	}
	return total
}

func DefaultCriteria() Criteria {
	return Criteria{
		{Name: "detail", Max: 10, Required: 6},
		{Name: "design", Max: 10, Required: 6},
		{Name: "flow", Max: 10, Required: 6},
	}
}
