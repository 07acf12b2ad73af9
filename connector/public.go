package connector

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/juju/errors"

	"github.com/btcturk-go/btcturk-go/client/websocket"
	"github.com/btcturk-go/btcturk-go/common"
	"github.com/btcturk-go/btcturk-go/orderbooks"
)

// publicListenerID is the listener id of all Public subscriptions, so that
// connecting twice doesn't register listeners twice.
const publicListenerID = "connector-public"

// PublicParams contains options of a Public connector.
type PublicParams struct {
	Params

	// SeedOrderBook makes Connect get the order book over REST before
	// subscribing, so that the first pushed book comes with a delta against
	// it.
	SeedOrderBook bool
}

// Public subscribes to trades, the ticker and the order book of a pair.
type Public struct {
	*clients

	seedOrderBook bool

	mtx     sync.Mutex
	watcher *orderbooks.OrderBookWatcher
}

// NewPublic creates a Public connector; call Connect to start it.
func NewPublic(params PublicParams) (*Public, error) {
	c, err := newClients(&params.Params, "public")
	if err != nil {
		return nil, errors.Trace(err)
	}

	return &Public{
		clients:       c,
		seedOrderBook: params.SeedOrderBook,
	}, nil
}

// Connect opens the connection and subscribes to the pair's channels.
// Calling it again while connected is a no-op.
func (p *Public) Connect(ctx context.Context, onMessage OnMessage) error {
	if err := p.validatePair(ctx); err != nil {
		return errors.Trace(err)
	}

	if err := p.ws.Connect(ctx); err != nil {
		return errors.Trace(err)
	}

	p.mtx.Lock()
	defer p.mtx.Unlock()

	symbol := p.pair.Symbol()

	_, err := p.ws.SubscribeBatch(ctx, []websocket.SubscribeParams{
		{
			Channel:    common.ChannelTrade,
			Event:      symbol,
			ListenerID: publicListenerID,
			OnMessage:  p.handleTrade(onMessage),
			OnError:    p.logSubscriptionError,
		},
		{
			Channel:    common.ChannelTicker,
			Event:      symbol,
			ListenerID: publicListenerID,
			OnMessage:  p.handleTicker(onMessage),
			OnError:    p.logSubscriptionError,
		},
	})
	if err != nil {
		return errors.Trace(err)
	}

	if p.watcher != nil {
		return nil
	}

	watcherParams := orderbooks.OrderBookWatcherParams{
		PairSymbol:   symbol,
		StreamClient: p.ws,
		ListenerID:   publicListenerID,
		Logger:       p.log,
	}

	if p.seedOrderBook {
		getter, err := orderbooks.NewSnapshotGetterREST(p.rest, symbol, 0)
		if err != nil {
			return errors.Trace(err)
		}
		watcherParams.SnapshotGetter = getter
	}

	watcher, err := orderbooks.NewOrderBookWatcher(ctx, watcherParams)
	if err != nil {
		return errors.Trace(err)
	}

	watcher.OnUpdate(func(book common.Book, delta common.BookDelta) {
		onMessage([]Event{{OrderBook: &book, BookDelta: &delta}})
	})
	p.watcher = watcher

	return nil
}

// Book returns the current order book; it's empty until the first book
// arrives (or is seeded).
func (p *Public) Book() common.Book {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	if p.watcher == nil {
		return common.Book{PairSymbol: p.pair.Symbol()}
	}

	return p.watcher.GetBook()
}

// Stop unsubscribes from everything and closes the connection. The
// connector can't be used afterwards.
func (p *Public) Stop(ctx context.Context) error {
	return errors.Trace(p.stop(ctx))
}

func (p *Public) handleTrade(onMessage OnMessage) websocket.MessageCallback {
	return func(msg *websocket.Message) {
		var trade common.Trade
		if err := json.Unmarshal(msg.Payload, &trade); err != nil {
			p.log.WithError(err).Warn("Failed to decode trade")
			return
		}

		onMessage([]Event{{Trade: &trade}})
	}
}

func (p *Public) handleTicker(onMessage OnMessage) websocket.MessageCallback {
	return func(msg *websocket.Message) {
		var ticker common.Ticker
		if err := json.Unmarshal(msg.Payload, &ticker); err != nil {
			p.log.WithError(err).Warn("Failed to decode ticker")
			return
		}

		onMessage([]Event{{Ticker: &ticker}})
	}
}

func (p *Public) logSubscriptionError(err error) {
	p.log.WithError(err).Error("Subscription failed")
}
