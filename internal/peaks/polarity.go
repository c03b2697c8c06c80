package peaks

import (
	"fmt"
	"strings"
)

// Polarity selects whether Find looks for a local maximum or minimum.
type Polarity int

const (
	Positive Polarity = iota + 1
	Negative
)

// ParsePolarity accepts the names and wire codes operators type on the
// command line.
func ParsePolarity(value string) (Polarity, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "pos", "positive", "p", "1", "+":
		return Positive, nil
	case "neg", "negative", "n", "2", "-":
		return Negative, nil
	default:
		return 0, fmt.Errorf("unknown polarity %q (want positive or negative)", value)
	}
}

// FromWire converts the upload encoding (1 positive, 2 negative).
func FromWire(code int) (Polarity, error) {
	switch code {
	case 1:
		return Positive, nil
	case 2:
		return Negative, nil
	default:
		return 0, fmt.Errorf("unknown peak polarity code %d", code)
	}
}

// Wire returns the upload encoding.
func (p Polarity) Wire() int {
	switch p {
	case Positive:
		return 1
	case Negative:
		return 2
	default:
		return 0
	}
}

func (p Polarity) Valid() bool {
	return p == Positive || p == Negative
}

func (p Polarity) String() string {
	switch p {
	case Positive:
		return "positive"
	case Negative:
		return "negative"
	default:
		return fmt.Sprintf("Polarity(%d)", int(p))
	}
}

// dominates reports whether a is more extreme than b for this polarity.
func (p Polarity) dominates(a, b float64) bool {
	if p == Negative {
		return a < b
	}
	return a > b
}
