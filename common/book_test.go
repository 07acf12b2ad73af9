package common

import (
	"math/rand"
	"testing"

	"github.com/juju/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dfs(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func levels(pairs ...string) []PublicOrder {
	res := make([]PublicOrder, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		res = append(res, PublicOrder{Price: dfs(pairs[i]), Amount: dfs(pairs[i+1])})
	}
	return res
}

func prices(ps ...string) []decimal.Decimal {
	res := make([]decimal.Decimal, 0, len(ps))
	for _, p := range ps {
		res = append(res, dfs(p))
	}
	return res
}

func TestDiffLevels(t *testing.T) {
	type testCase struct {
		descr      string
		prev, cur  []PublicOrder
		descending bool
		want       LevelDeltas
	}

	testCases := []testCase{
		{descr: "Equal sides",
			prev: levels("10", "1", "11", "2"),
			cur:  levels("10", "1", "11", "2"),
			want: LevelDeltas{},
		},
		{descr: "Amount changed",
			prev: levels("10", "1", "11", "2"),
			cur:  levels("10", "1", "11", "3"),
			want: LevelDeltas{Set: levels("11", "3")},
		},
		{descr: "Level added in the middle and one removed at the end",
			prev: levels("10", "1", "12", "2", "13", "1"),
			cur:  levels("10", "1", "11", "5", "12", "2"),
			want: LevelDeltas{
				Set:    levels("11", "5"),
				Remove: prices("13"),
			},
		},
		{descr: "Bids, best first",
			prev:       levels("9", "1", "8", "1", "7", "1"),
			cur:        levels("9.5", "2", "8", "1"),
			descending: true,
			want: LevelDeltas{
				Set:    levels("9.5", "2"),
				Remove: prices("9", "7"),
			},
		},
		{descr: "Side emptied",
			prev: levels("10", "1"),
			cur:  nil,
			want: LevelDeltas{Remove: prices("10")},
		},
	}

	for i, tc := range testCases {
		got := DiffLevels(tc.prev, tc.cur, tc.descending)
		assert.Equal(t, tc.want.Set, got.Set, "test case #%d (%s)", i, tc.descr)
		assert.Equal(t, tc.want.Remove, got.Remove, "test case #%d (%s)", i, tc.descr)
	}
}

func TestApplyLevelDeltas(t *testing.T) {
	type testCase struct {
		descr      string
		levels     []PublicOrder
		deltas     LevelDeltas
		descending bool
		want       []PublicOrder
	}

	testCases := []testCase{
		{descr: "Insert, replace and remove",
			levels: levels("10", "1", "11", "2", "12", "3"),
			deltas: LevelDeltas{
				Set:    levels("10.5", "4", "12", "6"),
				Remove: prices("11"),
			},
			want: levels("10", "1", "10.5", "4", "12", "6"),
		},
		{descr: "Removing a missing level is a no-op",
			levels: levels("10", "1"),
			deltas: LevelDeltas{Remove: prices("9")},
			want:   levels("10", "1"),
		},
		{descr: "Later set of the same price wins",
			levels: levels("10", "1"),
			deltas: LevelDeltas{Set: levels("11", "1", "11", "7")},
			want:   levels("10", "1", "11", "7"),
		},
		{descr: "Removal wins over set of the same price",
			levels: levels("10", "1", "11", "2"),
			deltas: LevelDeltas{
				Set:    levels("11", "5"),
				Remove: prices("11"),
			},
			want: levels("10", "1"),
		},
		{descr: "Bids, best first",
			levels:     levels("9", "1", "7", "1"),
			deltas:     LevelDeltas{Set: levels("8", "2", "10", "3")},
			descending: true,
			want:       levels("10", "3", "9", "1", "8", "2", "7", "1"),
		},
		{descr: "Empty side",
			levels: nil,
			deltas: LevelDeltas{Set: levels("11", "1", "10", "2")},
			want:   levels("10", "2", "11", "1"),
		},
	}

	for i, tc := range testCases {
		before := append([]PublicOrder(nil), tc.levels...)
		got := ApplyLevelDeltas(tc.levels, &tc.deltas, tc.descending)
		assert.Equal(t, tc.want, got, "test case #%d (%s)", i, tc.descr)
		// The source levels are left intact.
		assert.Equal(t, before, tc.levels, "test case #%d (%s)", i, tc.descr)
	}
}

func TestBookApply(t *testing.T) {
	prev := NewBook(&OrderBook{
		PairSymbol: "BTCTRY",
		ChangeSet:  7,
		// Unsorted on purpose.
		Bids: levels("99", "1", "100", "2"),
		Asks: levels("102", "1", "101", "3"),
	})

	assert.Equal(t, levels("100", "2", "99", "1"), prev.Bids)
	assert.Equal(t, levels("101", "3", "102", "1"), prev.Asks)
	assert.False(t, prev.Crossed())

	bid, ask, ok := prev.Spread()
	assert.True(t, ok)
	assert.Equal(t, dfs("100"), bid.Price)
	assert.Equal(t, dfs("101"), ask.Price)

	cur := Book{
		PairSymbol: "BTCTRY",
		ChangeSet:  8,
		Bids:       levels("100", "2.5", "98", "1"),
		Asks:       levels("101", "3"),
	}

	delta := cur.Diff(prev)
	assert.Equal(t, int64(7), delta.PrevChangeSet)
	assert.Equal(t, int64(8), delta.ChangeSet)
	assert.False(t, delta.Empty())

	got, err := prev.Apply(delta)
	assert.NoError(t, err)
	assert.Equal(t, cur, got)

	// Applying it again doesn't fit: the book has moved on.
	_, err = got.Apply(delta)
	assert.Equal(t, ErrChangeSetMismatch, errors.Cause(err))

	assert.True(t, cur.Diff(cur).Empty())
}

func TestBookCrossed(t *testing.T) {
	b := Book{
		Bids: levels("101", "1"),
		Asks: levels("101", "1"),
	}
	assert.True(t, b.Crossed())

	b.Asks = nil
	assert.False(t, b.Crossed())
	_, _, ok := b.Spread()
	assert.False(t, ok)

	b.Bids = nil
	assert.True(t, b.Empty())
}

// TestDiffApplyRandom checks that applying the diff of two random books to the
// first one always gives the second one.
func TestDiffApplyRandom(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))

	randomSide := func(descending bool) []PublicOrder {
		var res []PublicOrder
		for p := 1; p <= 30; p++ {
			if rnd.Intn(2) == 0 {
				continue
			}
			res = append(res, PublicOrder{
				Price:  decimal.New(int64(p), -1),
				Amount: decimal.New(int64(1+rnd.Intn(3)), 0),
			})
		}
		sortLevels(res, descending)
		return res
	}

	for i := 0; i < 200; i++ {
		prev := Book{ChangeSet: int64(i), Bids: randomSide(true), Asks: randomSide(false)}
		cur := Book{ChangeSet: int64(i + 1), Bids: randomSide(true), Asks: randomSide(false)}

		got, err := prev.Apply(cur.Diff(prev))
		if !assert.NoError(t, err) {
			return
		}

		if !assert.Equal(t, len(cur.Bids), len(got.Bids), "iteration %d", i) ||
			!assert.Equal(t, len(cur.Asks), len(got.Asks), "iteration %d", i) {
			continue
		}
		for j := range cur.Bids {
			assert.True(t, cur.Bids[j].Price.Equal(got.Bids[j].Price), "iteration %d bid %d", i, j)
			assert.True(t, cur.Bids[j].Amount.Equal(got.Bids[j].Amount), "iteration %d bid %d", i, j)
		}
		for j := range cur.Asks {
			assert.True(t, cur.Asks[j].Price.Equal(got.Asks[j].Price), "iteration %d ask %d", i, j)
			assert.True(t, cur.Asks[j].Amount.Equal(got.Asks[j].Amount), "iteration %d ask %d", i, j)
		}
	}
}
