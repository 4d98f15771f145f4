// Package data loads static game content tables from YAML.
package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CardInfo is one card template within a deck.
type CardInfo struct {
	Name string `yaml:"name"`
	Suit string `yaml:"suit"`
	Rank int    `yaml:"rank"`
}

// DeckSpec is a named list of card templates.
type DeckSpec struct {
	Name  string     `yaml:"name"`
	Cards []CardInfo `yaml:"cards"`
}

// DeckTable holds all decks indexed by name.
type DeckTable struct {
	decks map[string]*DeckSpec
}

// Get returns a deck by name, or nil if not found.
func (t *DeckTable) Get(name string) *DeckSpec {
	return t.decks[name]
}

// Count returns total loaded decks.
func (t *DeckTable) Count() int {
	return len(t.decks)
}

type deckListFile struct {
	Decks []DeckSpec `yaml:"decks"`
}

// LoadDeckTable loads deck definitions from YAML.
func LoadDeckTable(path string) (*DeckTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read decks: %w", err)
	}
	var f deckListFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse decks: %w", err)
	}
	t := &DeckTable{decks: make(map[string]*DeckSpec, len(f.Decks))}
	for i := range f.Decks {
		d := f.Decks[i]
		if d.Name == "" {
			return nil, fmt.Errorf("parse decks: deck %d has no name", i)
		}
		t.decks[d.Name] = &d
	}
	return t, nil
}

var suits = []string{"clubs", "diamonds", "hearts", "spades"}

var rankNames = map[int]string{
	1: "ace", 11: "jack", 12: "queen", 13: "king",
}

func rankName(rank int) string {
	if n, ok := rankNames[rank]; ok {
		return n
	}
	return fmt.Sprintf("%d", rank)
}

// StandardDeck is the built-in 52-card deck used when no YAML table
// overrides it.
func StandardDeck() *DeckSpec {
	d := &DeckSpec{Name: "standard"}
	for _, suit := range suits {
		for rank := 1; rank <= 13; rank++ {
			d.Cards = append(d.Cards, CardInfo{
				Name: fmt.Sprintf("%s of %s", rankName(rank), suit),
				Suit: suit,
				Rank: rank,
			})
		}
	}
	return d
}
