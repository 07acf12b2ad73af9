/*
Package connector wires the stream and REST clients into connectors for a
single pair: Public forwards market data, Private forwards order updates and
manages orders and balances.

Connectors hand exchange-native payloads to the caller's OnMessage; turning
them into any other schema is up to the caller. Subscriptions are restored by
the stream client after reconnects, so connectors don't watch the connection
themselves.
*/
package connector // import "github.com/btcturk-go/btcturk-go/connector"

import (
	"context"
	"strings"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/btcturk-go/btcturk-go/cache"
	"github.com/btcturk-go/btcturk-go/client/rest"
	"github.com/btcturk-go/btcturk-go/client/websocket"
	"github.com/btcturk-go/btcturk-go/common"
)

// Pair is a traded pair, e.g. BTC/TRY.
type Pair struct {
	Base  string
	Quote string
}

// Symbol returns the pair symbol the exchange uses, e.g. "BTCTRY".
func (p Pair) Symbol() string {
	return strings.ToUpper(p.Base + p.Quote)
}

func (p Pair) String() string {
	return strings.ToUpper(p.Base + "/" + p.Quote)
}

// ParsePair parses a pair like "BTC-TRY", "BTC_TRY" or "btc/try".
func ParsePair(s string) (Pair, error) {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '-' || r == '_' || r == '/'
	})

	if len(parts) != 2 {
		return Pair{}, errors.NotValidf("pair %q", s)
	}

	return Pair{
		Base:  strings.ToUpper(parts[0]),
		Quote: strings.ToUpper(parts[1]),
	}, nil
}

// Event is what connectors pass to OnMessage. Only the fields relevant to the
// event are set: a trade, a ticker, an order book along with the delta from
// the previous one, or an order update.
type Event struct {
	Trade       *common.Trade
	Ticker      *common.Ticker
	OrderBook   *common.Book
	BookDelta   *common.BookDelta
	OrderUpdate *common.OrderUpdate
}

// OnMessage receives events of a connector. It's called from the stream
// client's event loop, so it must not block.
type OnMessage func(events []Event)

// Params contains options shared by Public and Private connectors.
type Params struct {
	Pair Pair

	// StreamURL defaults to websocket.DefaultURL.
	StreamURL string
	// APIURL defaults to rest.DefaultURL.
	APIURL string

	// Credentials are required by Private only.
	Credentials *common.Credentials

	// ReconnectOpts, MaxRetries and Nonce are passed to the clients as is.
	ReconnectOpts *websocket.ReconnectOpts
	MaxRetries    int
	Nonce         int

	// RateLimiter, if set, paces the REST requests of the connector.
	RateLimiter *rate.Limiter

	// ValidatePair makes Connect check that the pair is listed and tradable.
	ValidatePair bool
	// Pairs is the cache used by ValidatePair; if nil, each connector has its
	// own.
	Pairs *cache.Cache

	// Debug logs every inbound frame.
	Debug bool

	Logger logrus.FieldLogger
}

// clients holds what both connector kinds are built on.
type clients struct {
	pair Pair
	ws   *websocket.Client
	rest *rest.RESTClient
	log  logrus.FieldLogger

	params Params
}

func newClients(params *Params, kind string) (*clients, error) {
	if params.Pair.Base == "" || params.Pair.Quote == "" {
		return nil, errors.NotValidf("pair %+v", params.Pair)
	}

	log := params.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithFields(logrus.Fields{
		"connector": kind,
		"pair":      params.Pair.Symbol(),
	})

	ws, err := websocket.NewClient(&websocket.ClientParams{
		URL:           params.StreamURL,
		Credentials:   params.Credentials,
		Nonce:         params.Nonce,
		ReconnectOpts: params.ReconnectOpts,
		Logger:        log,
	})
	if err != nil {
		return nil, errors.Trace(err)
	}

	if params.Debug {
		ws.OnRawMessage(func(data []byte) {
			log.WithField("data", string(data)).Debug("Message received")
		})
	}

	restClient := rest.NewRESTClient(&rest.RESTClientParams{
		URL:         params.APIURL,
		Credentials: params.Credentials,
		MaxRetries:  params.MaxRetries,
		RateLimiter: params.RateLimiter,
		Logger:      log,
	})

	if params.ValidatePair && params.Pairs == nil {
		params.Pairs = cache.New()
	}

	return &clients{
		pair:   params.Pair,
		ws:     ws,
		rest:   restClient,
		log:    log,
		params: *params,
	}, nil
}

// StreamClient returns the underlying websocket client.
func (c *clients) StreamClient() *websocket.Client {
	return c.ws
}

// RESTClient returns the underlying REST client.
func (c *clients) RESTClient() *rest.RESTClient {
	return c.rest
}

// Pair returns the pair of the connector.
func (c *clients) Pair() Pair {
	return c.pair
}

func (c *clients) validatePair(ctx context.Context) error {
	if !c.params.ValidatePair {
		return nil
	}

	descr, err := c.params.Pairs.LookupPair(ctx, c.rest, c.pair.Symbol())
	if err != nil {
		return errors.Trace(err)
	}

	if !descr.Tradable() {
		return errors.NotValidf("pair %s with status %q", c.pair, descr.Status)
	}

	return nil
}

func (c *clients) stop(ctx context.Context) error {
	var firstErr error

	if err := c.ws.UnsubscribeAll(ctx); err != nil {
		// Unsubscribing fails if the connection is down, it doesn't matter
		// since the client is stopped anyway.
		c.log.WithError(err).Warn("Failed to unsubscribe")
	}

	if err := c.ws.Stop(); err != nil {
		firstErr = errors.Trace(err)
	}

	c.rest.Stop()

	return firstErr
}
