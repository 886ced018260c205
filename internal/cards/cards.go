// internal/cards/cards.go
package cards

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
)

// Suit is a single-letter suit code: H, D, C or S.
type Suit string

// Color is the card color derived from the suit.
type Color string

const (
	Hearts   Suit = "H"
	Diamonds Suit = "D"
	Clubs    Suit = "C"
	Spades   Suit = "S"

	Red   Color = "RED"
	Black Color = "BLACK"
)

// Level is the risk tier a player commits to before guessing the secret card.
type Level string

const (
	LevelSafe   Level = "SAFE"   // guess the color
	LevelMedium Level = "MEDIUM" // guess the suit
	LevelBold   Level = "BOLD"   // guess the exact card
)

// ErrInvalidCard indicates a card code that does not parse as rank+suit.
var ErrInvalidCard = errors.New("invalid card code")

var (
	suits = []Suit{Hearts, Diamonds, Clubs, Spades}
	ranks = []string{"A", "2", "3", "4", "5", "6", "7", "8", "9", "10", "J", "Q", "K"}

	rankValues = map[string]int{
		"A": 1, "2": 2, "3": 3, "4": 4, "5": 5, "6": 6, "7": 7, "8": 8,
		"9": 9, "10": 10, "J": 11, "Q": 12, "K": 13,
	}

	suitNames = map[string]Suit{
		"H": Hearts, "HEARTS": Hearts,
		"D": Diamonds, "DIAMONDS": Diamonds,
		"C": Clubs, "CLUBS": Clubs,
		"S": Spades, "SPADES": Spades,
	}
)

// Card is a rank+suit pair, e.g. {Rank: "Q", Suit: "D"}.
type Card struct {
	Rank string `json:"rank"`
	Suit Suit   `json:"suit"`
}

// Code renders the canonical card code, e.g. "QD" or "10S".
func (c Card) Code() string {
	return c.Rank + string(c.Suit)
}

// Color returns RED for hearts/diamonds, BLACK for clubs/spades.
func (c Card) Color() Color {
	if c.Suit == Hearts || c.Suit == Diamonds {
		return Red
	}
	return Black
}

// Value returns the numeric rank value (A=1 .. K=13).
func (c Card) Value() int {
	return rankValues[c.Rank]
}

// IsFace reports whether the card is J, Q or K.
func (c Card) IsFace() bool {
	return c.Rank == "J" || c.Rank == "Q" || c.Rank == "K"
}

// IsAce reports whether the card is an ace.
func (c Card) IsAce() bool {
	return c.Rank == "A"
}

// Parse reads a card code like "QD", "qd", "10S" or "Q D" into a Card.
func Parse(code string) (Card, error) {
	s := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(code), " ", ""))
	if len(s) < 2 {
		return Card{}, fmt.Errorf("%w: %q", ErrInvalidCard, code)
	}
	rank := s[:len(s)-1]
	suit, ok := suitNames[s[len(s)-1:]]
	if !ok {
		return Card{}, fmt.Errorf("%w: %q", ErrInvalidCard, code)
	}
	// "T" is accepted as a spoken/typed alias for 10.
	if rank == "T" {
		rank = "10"
	}
	if _, ok := rankValues[rank]; !ok {
		return Card{}, fmt.Errorf("%w: %q", ErrInvalidCard, code)
	}
	return Card{Rank: rank, Suit: suit}, nil
}

// Random draws a uniform-random card from the given source.
func Random(r *rand.Rand) Card {
	return Card{
		Rank: ranks[r.Intn(len(ranks))],
		Suit: suits[r.Intn(len(suits))],
	}
}

// Facts is what the question analyzer is allowed to know about the secret
// card. It deliberately carries derived properties rather than free text.
type Facts struct {
	Rank      string `json:"rank"`
	RankValue int    `json:"rankValue"`
	Suit      string `json:"suit"`
	Color     string `json:"color"`
	IsFace    bool   `json:"isFace"`
	IsAce     bool   `json:"isAce"`
}

// FactsFor derives the analyzer-visible facts for a secret card.
func FactsFor(c Card) Facts {
	return Facts{
		Rank:      c.Rank,
		RankValue: c.Value(),
		Suit:      string(c.Suit),
		Color:     string(c.Color()),
		IsFace:    c.IsFace(),
		IsAce:     c.IsAce(),
	}
}

// ParseLevel validates a level token.
func ParseLevel(s string) (Level, bool) {
	switch Level(strings.ToUpper(strings.TrimSpace(s))) {
	case LevelSafe:
		return LevelSafe, true
	case LevelMedium:
		return LevelMedium, true
	case LevelBold:
		return LevelBold, true
	}
	return "", false
}

// NormalizeGuess canonicalizes a raw guess for the given level:
// SAFE => RED|BLACK, MEDIUM => single suit letter, BOLD => card code.
// Returns false when the guess does not match the level's expected shape.
func NormalizeGuess(level Level, raw string) (string, bool) {
	g := strings.ToUpper(strings.TrimSpace(raw))
	switch level {
	case LevelSafe:
		if g == string(Red) || g == string(Black) {
			return g, true
		}
	case LevelMedium:
		if suit, ok := suitNames[g]; ok {
			return string(suit), true
		}
	case LevelBold:
		if c, err := Parse(g); err == nil {
			return c.Code(), true
		}
	}
	return "", false
}

// BaseScore computes the level-based points for a normalized guess against the
// secret card at the given vault value. The call-vault modifier is applied by
// the engine on top of this.
func BaseScore(level Level, guess string, secret Card, vault int) int {
	switch level {
	case LevelSafe:
		if guess == string(secret.Color()) {
			return vault / 4
		}
		return 0
	case LevelMedium:
		if guess == string(secret.Suit) {
			return vault / 2
		}
		return -1
	case LevelBold:
		if guess == secret.Code() {
			return vault
		}
		return -3
	}
	return 0
}
