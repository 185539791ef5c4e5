package assembler

import (
	"strings"

	"github.com/pable/go-smash-metrics/internal/model"
	"github.com/pable/go-smash-metrics/internal/startgg"
)

// aliases maps common community shorthand to canonical character names
// (canonical form, lowercase with punctuation stripped).
var aliases = map[string]string{
	"puff":              "jigglypuff",
	"ganon":             "ganondorf",
	"doc":               "dr mario",
	"gnw":               "mr game watch",
	"game and watch":    "mr game watch",
	"mr game and watch": "mr game watch",
	"ics":               "ice climbers",
	"icies":             "ice climbers",
	"yl":                "young link",
	"dk":                "donkey kong",
	"falcon":            "captain falcon",
}

// Normalizer resolves raw character picks against a videogame's canonical
// character list.
type Normalizer struct {
	byID   map[int64]string
	byName map[string]string // canonical form -> display name
}

// NewNormalizer builds a normalizer from the upstream character list.
func NewNormalizer(chars []startgg.Character) *Normalizer {
	n := &Normalizer{
		byID:   make(map[int64]string, len(chars)),
		byName: make(map[string]string, len(chars)),
	}
	for _, c := range chars {
		n.byID[c.ID] = c.Name
		n.byName[canonical(c.Name)] = c.Name
	}
	return n
}

// ResolveName normalizes a raw character name. Unresolvable names pass
// through verbatim with Known=false.
func (n *Normalizer) ResolveName(raw string) model.Character {
	c := canonical(raw)
	if alias, ok := aliases[c]; ok {
		c = alias
	}
	if display, ok := n.byName[c]; ok {
		return model.Character{Name: display, Known: true}
	}
	return model.Character{Name: strings.TrimSpace(raw), Known: false}
}

// ResolveID resolves an upstream character id from a game selection.
func (n *Normalizer) ResolveID(id int64) model.Character {
	if display, ok := n.byID[id]; ok {
		return model.Character{Name: display, Known: true}
	}
	return model.Character{Name: "", Known: false}
}

// canonical lowercases and strips punctuation so "Mr. Game & Watch",
// "mr game & watch" and "MR GAME & WATCH" all collapse to one form.
func canonical(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch r {
		case '.', ',', '\'', '&', '-', '_':
			continue
		default:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
