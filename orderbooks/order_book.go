package orderbooks

import (
	"sync"

	"github.com/juju/errors"

	"github.com/btcturk-go/btcturk-go/common"
)

// OrderBook is a mutable order book which receives full books and deltas.
// It is safe for concurrent use.
type OrderBook struct {
	mtx  sync.Mutex
	book common.Book
}

func NewOrderBook(book common.Book) *OrderBook {
	return &OrderBook{
		book: book,
	}
}

// GetBook returns a copy of the current book.
func (ob *OrderBook) GetBook() common.Book {
	ob.mtx.Lock()
	defer ob.mtx.Unlock()

	return ob.book.Copy()
}

// GetChangeSet is a shortcut for GetBook().ChangeSet
func (ob *OrderBook) GetChangeSet() int64 {
	ob.mtx.Lock()
	defer ob.mtx.Unlock()

	return ob.book.ChangeSet
}

// ApplyDelta applies the given delta to the current book. If the delta was
// computed against another book, returns an error without applying it.
func (ob *OrderBook) ApplyDelta(delta common.BookDelta) error {
	ob.mtx.Lock()
	defer ob.mtx.Unlock()

	book, err := ob.book.Apply(delta)
	if err != nil {
		return errors.Trace(err)
	}

	ob.book = book

	return nil
}

// ApplyBook replaces the current book with the given one, and returns the
// delta between the two.
func (ob *OrderBook) ApplyBook(book common.Book) common.BookDelta {
	ob.mtx.Lock()
	defer ob.mtx.Unlock()

	delta := book.Diff(ob.book)
	ob.book = book

	return delta
}
