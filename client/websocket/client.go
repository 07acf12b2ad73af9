/*
Package websocket provides a client for the exchange's websocket feed.

The client keeps a single connection open, reconnecting after every
unplanned close. Subscriptions are kept in a registry and restored on each
reconnect, after the client has logged in again if it has credentials.
Inbound frames are routed to subscriptions by (channel, event, type), with
fallbacks for frames which lack routing fields or arrive under a related
type.

	c, err := websocket.NewClient(&websocket.ClientParams{})
	if err != nil {
		// ...
	}

	if err := c.Connect(ctx); err != nil {
		// ...
	}

	sub, err := c.Subscribe(ctx, websocket.SubscribeParams{
		Channel: "trade",
		Event:   "BTCUSDT",
		OnMessage: func(msg *websocket.Message) {
			// ...
		},
	})
*/
package websocket // import "github.com/btcturk-go/btcturk-go/client/websocket"

import (
	"fmt"
	"net/http"
	"time"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"

	"github.com/btcturk-go/btcturk-go/client/websocket/internal"
	"github.com/btcturk-go/btcturk-go/common"
	"github.com/btcturk-go/btcturk-go/version"
)

const (
	DefaultURL = "wss://ws-feed-pro.btcturk.com"

	// DefaultNonce is the nonce used for login when ClientParams.Nonce is
	// zero. The exchange accepts values between 100 and 60000.
	DefaultNonce = 3000
)

// The following errors are returned from Client.
var (
	// ErrNotConnected means the connection is not open when the client tried
	// to e.g. subscribe.
	ErrNotConnected = errors.New("not connected")

	// ErrNotAuthenticated means a private subscription was attempted before
	// logging in.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrNoCredentials means Login was called on a client without
	// credentials.
	ErrNoCredentials = errors.New("no credentials")

	// ErrConnectionLost means the connection was closed while waiting for
	// a response, e.g. a login result.
	ErrConnectionLost = errors.New("connection lost")

	// ErrStopped means the client was stopped; a stopped client can't be
	// used anymore.
	ErrStopped = errors.New("client is stopped")
)

// ConnectionError is returned from Connect if the connection couldn't be
// opened.
type ConnectionError struct {
	URL   string
	Cause error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connecting to %s: %v", e.URL, e.Cause)
}

// AuthError is returned from Login if the exchange rejected the login, or
// its response couldn't be understood.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("login failed: %s", e.Message)
}

// SubscriptionError is returned if a join or leave frame couldn't be sent.
type SubscriptionError struct {
	Key   Key
	Join  bool
	Cause error
}

func (e *SubscriptionError) Error() string {
	action := "leave"
	if e.Join {
		action = "join"
	}

	return fmt.Sprintf("%s %s: %v", action, e.Key, e.Cause)
}

// ClientParams contains options for the websocket client.
type ClientParams struct {
	// URL is the URL to connect to. Defaults to DefaultURL.
	URL string

	// Credentials are needed for private subscriptions only. If set, the
	// client logs in every time the connection is opened.
	Credentials *common.Credentials

	// Nonce is sent with the login request; defaults to DefaultNonce.
	Nonce int

	// ReconnectOpts contains settings for how to reconnect if the client
	// becomes disconnected. Sensible defaults are used.
	ReconnectOpts *ReconnectOpts

	// DispatchOpts configures routing of inbound frames.
	DispatchOpts *DispatchOpts

	// WriteTimeout bounds every frame write, including the ones made by the
	// client itself (login, replay after reconnect). A timed out write drops
	// the connection. Defaults to 10 seconds.
	WriteTimeout time.Duration

	// SkipLeaveAcks makes UnsubscribeAll return without waiting for the leave
	// frames to be written.
	SkipLeaveAcks bool

	// Logger defaults to the logrus standard logger.
	Logger logrus.FieldLogger
}

// ReconnectOpts are settings used to reconnect after being disconnected. By
// default, the client reconnects 5 seconds after every disconnection.
type ReconnectOpts struct {
	// Reconnect switch: if true, the client will attempt to reconnect to the websocket back
	// end if it is disconnected. If false, the client will stay disconnected.
	Reconnect bool

	// Reconnection backoff: if true, then the reconnection time will be
	// initially ReconnectTimeout, then will grow by 500ms on each unsuccessful
	// connection attempt; but it won't be longer than MaxReconnectTimeout.
	Backoff bool

	// Delay before each reconnection attempt.
	ReconnectTimeout time.Duration

	// Max reconnect timeout, only used with Backoff.
	MaxReconnectTimeout time.Duration
}

var defaultReconnectOpts = &ReconnectOpts{
	Reconnect:           true,
	Backoff:             false,
	ReconnectTimeout:    5 * time.Second,
	MaxReconnectTimeout: 30 * time.Second,
}

// NewClient creates a new websocket client with the given params.
//
// Note that clients should manually call Connect on a newly created client;
// the rationale is that clients might register some state and/or message
// handlers before the connection, to avoid any possible races.
func NewClient(params *ClientParams) (*Client, error) {
	if params == nil {
		params = &ClientParams{}
	}

	p := *params

	if p.URL == "" {
		p.URL = DefaultURL
	}

	if p.ReconnectOpts == nil {
		p.ReconnectOpts = defaultReconnectOpts
	}

	if p.Nonce == 0 {
		p.Nonce = DefaultNonce
	}

	if p.Logger == nil {
		p.Logger = logrus.StandardLogger()
	}

	header := http.Header{}
	header.Set("User-Agent", version.UserAgent())

	transport, err := internal.NewStreamTransportConn(&internal.StreamTransportParams{
		URL:    p.URL,
		Header: header,

		Reconnect:           p.ReconnectOpts.Reconnect,
		Backoff:             p.ReconnectOpts.Backoff,
		ReconnectTimeout:    p.ReconnectOpts.ReconnectTimeout,
		MaxReconnectTimeout: p.ReconnectOpts.MaxReconnectTimeout,

		WriteTimeout: p.WriteTimeout,
	})
	if err != nil {
		return nil, errors.Trace(err)
	}

	log := p.Logger.WithField("component", "websocket")
	reg := newRegistry()

	c := &Client{
		params:         p,
		transport:      transport,
		log:            log,
		reg:            reg,
		disp:           newDispatcher(reg, p.DispatchOpts, log),
		stateListeners: make(map[ConnState][]stateListener),
		internalEvents: make(chan internalEvent, 128),
	}

	transport.OnStateChange(
		func(_ *internal.StreamTransportConn, oldTransportState, transportState internal.TransportState, cause error) {
			c.internalEvents <- internalEvent{
				transportStateUpdate: &transportStateUpdate{
					oldState: oldTransportState,
					state:    transportState,
					cause:    cause,
				},
			}
		},
	)

	transport.OnRead(
		func(_ *internal.StreamTransportConn, data []byte) {
			c.internalEvents <- internalEvent{
				rxData: data,
			}
		},
	)

	go c.eventLoop()

	return c, nil
}

// URL returns the url the client connects to.
func (c *Client) URL() string {
	return c.params.URL
}

// OnRawMessage sets a callback which is called for every inbound frame before
// it's routed. It should be called before Connect.
func (c *Client) OnRawMessage(cb func(data []byte)) {
	c.onRawMessage = cb
}

// OnReconnect sets a callback which is called after a reconnect, once the
// subscriptions were restored. It should be called before Connect.
func (c *Client) OnReconnect(cb func()) {
	c.onReconnect = cb
}

// Subscriptions returns keys which currently have listeners, in the order
// they were first subscribed.
func (c *Client) Subscriptions() []Key {
	return c.reg.keys()
}
