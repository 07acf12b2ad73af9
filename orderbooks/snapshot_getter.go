package orderbooks

import (
	"context"

	"github.com/juju/errors"

	"github.com/btcturk-go/btcturk-go/client/rest"
	"github.com/btcturk-go/btcturk-go/common"
)

// SnapshotGetter gets the current book of a pair. It's used to seed an
// OrderBookWatcher, so that the book is available before the first push
// arrives over the websocket.
type SnapshotGetter interface {
	GetBook(ctx context.Context) (common.Book, error)
}

var _ SnapshotGetter = &SnapshotGetterREST{}

// SnapshotGetterREST implements SnapshotGetter; it gets the book of the
// given pair from the REST API.
type SnapshotGetterREST struct {
	client     *rest.RESTClient
	pairSymbol string
	// limit is the number of levels of each side; zero means all.
	limit int
}

// NewSnapshotGetterREST creates a new snapshot getter which uses the REST API
// to get books of the given pair.
func NewSnapshotGetterREST(client *rest.RESTClient, pairSymbol string, limit int) (*SnapshotGetterREST, error) {
	if client == nil {
		return nil, errors.New("RESTClient is nil")
	}

	return &SnapshotGetterREST{
		client:     client,
		pairSymbol: pairSymbol,
		limit:      limit,
	}, nil
}

// GetBook returns the book with zero change set: REST snapshots don't carry
// one.
func (sg *SnapshotGetterREST) GetBook(ctx context.Context) (common.Book, error) {
	snapshot, err := sg.client.GetOrderBook(ctx, sg.pairSymbol, sg.limit)
	if err != nil {
		return common.Book{}, errors.Trace(err)
	}

	return common.NewBook(&common.OrderBook{
		PairSymbol: sg.pairSymbol,
		Bids:       snapshot.Bids,
		Asks:       snapshot.Asks,
	}), nil
}
