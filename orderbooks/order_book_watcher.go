package orderbooks

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"

	"github.com/btcturk-go/btcturk-go/client/websocket"
	"github.com/btcturk-go/btcturk-go/common"
)

// OnUpdateCB is called with the new book and the delta from the previous one.
type OnUpdateCB func(book common.Book, delta common.BookDelta)

// OrderBookWatcherParams are used as options to create a new OrderBookWatcher.
type OrderBookWatcherParams struct {
	PairSymbol string

	// StreamClient must be connected.
	StreamClient *websocket.Client

	// SnapshotGetter, if set, seeds the book before subscribing.
	SnapshotGetter SnapshotGetter

	// ListenerID of the orderbook subscription; see websocket.SubscribeParams.
	ListenerID string

	Logger logrus.FieldLogger
}

// OrderBookWatcher keeps the book of a pair up to date from the orderbook
// channel. The exchange pushes the whole book on each change; the watcher
// turns consecutive books into deltas for OnUpdate callbacks.
//
// After a reconnect the subscription is restored by the stream client, and
// the first pushed book is diffed against the last one seen before the
// disconnect.
type OrderBookWatcher struct {
	pairSymbol string

	streamClient *websocket.Client
	sub          *websocket.Subscription
	book         *OrderBook

	log logrus.FieldLogger

	mtx       sync.Mutex
	callbacks []OnUpdateCB
}

// NewOrderBookWatcher creates a new OrderBookWatcher and subscribes it.
func NewOrderBookWatcher(ctx context.Context, params OrderBookWatcherParams) (*OrderBookWatcher, error) {
	if params.StreamClient == nil {
		panic("StreamClient is nil")
	}

	if params.PairSymbol == "" {
		return nil, errors.NotValidf("empty pair symbol")
	}

	log := params.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	ob := &OrderBookWatcher{
		pairSymbol:   params.PairSymbol,
		streamClient: params.StreamClient,
		book:         NewOrderBook(common.Book{PairSymbol: params.PairSymbol}),
		log: log.WithFields(logrus.Fields{
			"component": "orderbook",
			"pair":      params.PairSymbol,
		}),
	}

	if params.SnapshotGetter != nil {
		book, err := params.SnapshotGetter.GetBook(ctx)
		if err != nil {
			return nil, errors.Annotatef(err, "getting initial book of %s", params.PairSymbol)
		}
		ob.book.ApplyBook(book)
	}

	sub, err := params.StreamClient.Subscribe(ctx, websocket.SubscribeParams{
		Channel:    common.ChannelOrderBook,
		Event:      params.PairSymbol,
		ListenerID: params.ListenerID,
		OnMessage:  ob.handleMessage,
		OnError: func(err error) {
			ob.log.WithError(err).Error("Order book subscription failed")
		},
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	ob.sub = sub

	return ob, nil
}

// PairSymbol returns the pair of the book.
func (ob *OrderBookWatcher) PairSymbol() string {
	return ob.pairSymbol
}

// GetBook returns a copy of the current book.
func (ob *OrderBookWatcher) GetBook() common.Book {
	return ob.book.GetBook()
}

// OnUpdate registers a callback for book changes. Callbacks are called from
// the stream client's event loop, so they must not block.
func (ob *OrderBookWatcher) OnUpdate(cb OnUpdateCB) {
	ob.mtx.Lock()
	defer ob.mtx.Unlock()

	ob.callbacks = append(ob.callbacks, cb)
}

// Stop unsubscribes from the orderbook channel; the stream client itself is
// left as is.
func (ob *OrderBookWatcher) Stop(ctx context.Context) error {
	return errors.Trace(ob.sub.Unsubscribe(ctx))
}

func (ob *OrderBookWatcher) handleMessage(msg *websocket.Message) {
	var raw common.OrderBook
	if err := json.Unmarshal(msg.Payload, &raw); err != nil {
		ob.log.WithError(err).Warn("Failed to decode order book")
		return
	}

	book := common.NewBook(&raw)
	if book.PairSymbol == "" {
		book.PairSymbol = ob.pairSymbol
	}

	if book.Crossed() {
		ob.log.WithField("changeSet", book.ChangeSet).Warn("Crossed book")
	}

	delta := ob.book.ApplyBook(book)
	if delta.Empty() {
		return
	}

	ob.mtx.Lock()
	callbacks := append([]OnUpdateCB(nil), ob.callbacks...)
	ob.mtx.Unlock()

	for _, cb := range callbacks {
		cb(book.Copy(), delta)
	}
}
