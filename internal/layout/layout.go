// Package layout holds the static per-screen seat descriptions supplied by
// the layout authority. Layouts are read-only inputs to the booking core:
// they answer "which tier is seat A1" and nothing else.
package layout

import (
	"fmt"
	"sync"
)

// Seat tiers. Each seat belongs to exactly one.
const (
	TierPremium  = "PREMIUM"
	TierStandard = "STANDARD"
	TierEconomy  = "ECONOMY"
)

type Seat struct {
	Row     string `json:"row"`
	Number  int    `json:"number"`
	SeatKey string `json:"seat_key"`
	Tier    string `json:"tier"`
}

type Layout struct {
	Name   string `json:"name"`
	Rows   int    `json:"rows"`
	Cols   int    `json:"cols"`
	Aisles []int  `json:"aisles"`
	Seats  []Seat `json:"seats"`

	indexOnce sync.Once
	byKey     map[string]*Seat
}

// TierOf resolves a seat key to its tier. The second return is false for
// keys that do not exist in this layout (including aisle positions).
// Layouts built by hand (e.g. decoded from JSON) are indexed on first use;
// the Once makes that safe under concurrent lookups.
func (l *Layout) TierOf(seatKey string) (string, bool) {
	l.indexOnce.Do(l.index)
	s, ok := l.byKey[seatKey]
	if !ok {
		return "", false
	}
	return s.Tier, true
}

func (l *Layout) index() {
	l.byKey = make(map[string]*Seat, len(l.Seats))
	for i := range l.Seats {
		l.byKey[l.Seats[i].SeatKey] = &l.Seats[i]
	}
}

const rowLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Generate builds a layout for a screen: front rows premium, back rows
// economy, everything between standard, and aisle columns left out of the
// seat list entirely.
func Generate(name string, rows, cols int, aisles []int) (*Layout, error) {
	if rows < 1 || rows > len(rowLetters) {
		return nil, fmt.Errorf("layout %q: row count %d out of range", name, rows)
	}
	if cols < 1 {
		return nil, fmt.Errorf("layout %q: col count %d out of range", name, cols)
	}

	aisleSet := make(map[int]bool, len(aisles))
	for _, a := range aisles {
		aisleSet[a] = true
	}

	seats := make([]Seat, 0, rows*cols)
	for row := 0; row < rows; row++ {
		for col := 1; col <= cols; col++ {
			if aisleSet[col] {
				continue
			}
			letter := string(rowLetters[row])
			seats = append(seats, Seat{
				Row:     letter,
				Number:  col,
				SeatKey: fmt.Sprintf("%s%d", letter, col),
				Tier:    tierForRow(row, rows),
			})
		}
	}

	l := &Layout{
		Name:   name,
		Rows:   rows,
		Cols:   cols,
		Aisles: aisles,
		Seats:  seats,
	}
	l.indexOnce.Do(l.index)
	return l, nil
}

// First two rows premium, last two economy, middle standard.
func tierForRow(row, rows int) string {
	switch {
	case row < 2:
		return TierPremium
	case row >= rows-2:
		return TierEconomy
	default:
		return TierStandard
	}
}
