package common

import (
	"sort"

	"github.com/juju/errors"
	"github.com/shopspring/decimal"
)

// ErrChangeSetMismatch is returned when a delta is applied to a book other
// than the one it was computed against.
var ErrChangeSetMismatch = errors.New("order book change set mismatch")

// Book is a local copy of a pair's order book. The exchange pushes the whole
// book on every change (message type 431); each push carries a change set
// number, which Book keeps to tell consecutive books apart.
type Book struct {
	PairSymbol string
	ChangeSet  int64

	// Bids are sorted by price, highest first.
	Bids []PublicOrder
	// Asks are sorted by price, lowest first.
	Asks []PublicOrder
}

// NewBook makes a Book out of a pushed order book message. Levels are
// copied and sorted.
func NewBook(ob *OrderBook) Book {
	b := Book{
		PairSymbol: ob.PairSymbol,
		ChangeSet:  ob.ChangeSet,
		Bids:       append([]PublicOrder(nil), ob.Bids...),
		Asks:       append([]PublicOrder(nil), ob.Asks...),
	}

	sortLevels(b.Bids, true)
	sortLevels(b.Asks, false)

	return b
}

// Copy returns a deep copy of the book.
func (b *Book) Copy() Book {
	return Book{
		PairSymbol: b.PairSymbol,
		ChangeSet:  b.ChangeSet,
		Bids:       append([]PublicOrder(nil), b.Bids...),
		Asks:       append([]PublicOrder(nil), b.Asks...),
	}
}

func (b *Book) Empty() bool {
	return len(b.Bids) == 0 && len(b.Asks) == 0
}

// Crossed returns true if the best bid is not below the best ask, which
// never happens to a consistent book.
func (b *Book) Crossed() bool {
	if len(b.Bids) == 0 || len(b.Asks) == 0 {
		return false
	}

	return b.Bids[0].Price.GreaterThanOrEqual(b.Asks[0].Price)
}

// Spread returns the best bid and ask. ok is false if either side is empty.
func (b *Book) Spread() (bid, ask PublicOrder, ok bool) {
	if len(b.Bids) == 0 || len(b.Asks) == 0 {
		return PublicOrder{}, PublicOrder{}, false
	}

	return b.Bids[0], b.Asks[0], true
}

// BookDelta is the difference between two consecutive books of a pair.
type BookDelta struct {
	PairSymbol string

	// PrevChangeSet is the change set of the book the delta applies to.
	PrevChangeSet int64
	ChangeSet     int64

	Bids LevelDeltas
	Asks LevelDeltas
}

func (d BookDelta) Empty() bool {
	return d.Bids.Empty() && d.Asks.Empty()
}

// LevelDeltas describes changes of one side of a book.
type LevelDeltas struct {
	// Set contains levels to add, or to replace the level of the same price.
	Set []PublicOrder

	// Remove contains prices of levels to remove.
	Remove []decimal.Decimal
}

func (d LevelDeltas) Empty() bool {
	return len(d.Set) == 0 && len(d.Remove) == 0
}

// Apply returns a new book with the delta applied; b is left intact.
func (b *Book) Apply(d BookDelta) (Book, error) {
	if d.PrevChangeSet != b.ChangeSet {
		return Book{}, errors.Annotatef(
			ErrChangeSetMismatch, "delta from %d, book at %d", d.PrevChangeSet, b.ChangeSet,
		)
	}

	return Book{
		PairSymbol: b.PairSymbol,
		ChangeSet:  d.ChangeSet,
		Bids:       ApplyLevelDeltas(b.Bids, &d.Bids, true),
		Asks:       ApplyLevelDeltas(b.Asks, &d.Asks, false),
	}, nil
}

// Diff returns the delta which turns prev into b.
func (b *Book) Diff(prev Book) BookDelta {
	return BookDelta{
		PairSymbol:    b.PairSymbol,
		PrevChangeSet: prev.ChangeSet,
		ChangeSet:     b.ChangeSet,
		Bids:          DiffLevels(prev.Bids, b.Bids, true),
		Asks:          DiffLevels(prev.Asks, b.Asks, false),
	}
}

// ApplyLevelDeltas applies deltas to the sorted levels and returns a newly
// allocated slice. If the same price is both set and removed, or set more than
// once, removal wins over setting, and a later set wins over an earlier one.
func ApplyLevelDeltas(levels []PublicOrder, d *LevelDeltas, descending bool) []PublicOrder {
	type change struct {
		level  PublicOrder
		remove bool
	}

	changes := make([]change, 0, len(d.Set)+len(d.Remove))
	for _, l := range d.Set {
		changes = append(changes, change{level: l})
	}
	for _, p := range d.Remove {
		changes = append(changes, change{level: PublicOrder{Price: p}, remove: true})
	}

	sort.SliceStable(changes, func(i, j int) bool {
		return priceBefore(changes[i].level.Price, changes[j].level.Price, descending)
	})

	res := make([]PublicOrder, 0, len(levels)+len(d.Set))
	i := 0

	for n, c := range changes {
		if n+1 < len(changes) && changes[n+1].level.Price.Equal(c.level.Price) {
			// Overridden by a later change of the same price.
			continue
		}

		for i < len(levels) && priceBefore(levels[i].Price, c.level.Price, descending) {
			res = append(res, levels[i])
			i++
		}

		if i < len(levels) && levels[i].Price.Equal(c.level.Price) {
			i++
		}

		if !c.remove {
			res = append(res, c.level)
		}
	}

	return append(res, levels[i:]...)
}

// DiffLevels returns deltas which turn the sorted levels prev into cur.
func DiffLevels(prev, cur []PublicOrder, descending bool) LevelDeltas {
	var d LevelDeltas
	i, j := 0, 0

	for i < len(prev) && j < len(cur) {
		p, c := prev[i], cur[j]

		switch {
		case p.Price.Equal(c.Price):
			if !p.Amount.Equal(c.Amount) {
				d.Set = append(d.Set, c)
			}
			i++
			j++

		case priceBefore(p.Price, c.Price, descending):
			d.Remove = append(d.Remove, p.Price)
			i++

		default:
			d.Set = append(d.Set, c)
			j++
		}
	}

	for _, p := range prev[i:] {
		d.Remove = append(d.Remove, p.Price)
	}
	d.Set = append(d.Set, cur[j:]...)

	return d
}

func priceBefore(a, b decimal.Decimal, descending bool) bool {
	if descending {
		return a.GreaterThan(b)
	}

	return a.LessThan(b)
}

func sortLevels(levels []PublicOrder, descending bool) {
	sort.SliceStable(levels, func(i, j int) bool {
		return priceBefore(levels[i].Price, levels[j].Price, descending)
	})
}
