package internal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/juju/errors"
)

type TransportState int

const (
	// TransportStateDisconnected means we're disconnected and not trying to connect.
	// connLoop is not running.
	TransportStateDisconnected TransportState = iota

	// TransportStateWaitBeforeReconnect means we already tried to connect, but then
	// either the connection failed, or succeeded but later disconnected for some
	// reason (see stateCause), and now we're waiting for a timeout before
	// connecting again. wsConn is nil, but connCtx and connCtxCancel are not,
	// and connLoop is running.
	TransportStateWaitBeforeReconnect

	// TransportStateConnecting means we're dialing the server right now.
	TransportStateConnecting

	// TransportStateConnected means the websocket connection is established.
	TransportStateConnected
)

const (
	backoffIncrement = 500 * time.Millisecond

	// closeReadTimeout is how long we wait for the server to answer our close
	// frame before dropping the connection.
	closeReadTimeout = 2 * time.Second

	// DefaultWriteTimeout bounds a single websocket write.
	DefaultWriteTimeout = 10 * time.Second
)

var (
	ErrNotConnected   = errors.New("transport error: not connected")
	ErrConnLoopActive = errors.New("transport error: connection loop is already active")
	ErrStopped        = errors.New("transport error: stopped")
)

// StreamTransportParams contains params for opening a client stream connection
// (see StreamTransportConn)
type StreamTransportParams struct {
	// Server URL, e.g. wss://ws-feed-pro.btcturk.com
	URL string

	// Header is sent with the websocket handshake.
	Header http.Header

	Reconnect           bool
	Backoff             bool
	ReconnectTimeout    time.Duration
	MaxReconnectTimeout time.Duration

	// WriteTimeout bounds every write; a write which doesn't complete in time
	// fails, and the connection is dropped (and reconnected, if enabled).
	// Defaults to DefaultWriteTimeout.
	WriteTimeout time.Duration

	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
}

// StreamTransportConn is a client stream connection: it dials the server,
// reads frames until the connection drops, and reconnects after a timeout.
// It knows nothing about the frames themselves.
type StreamTransportConn struct {
	params StreamTransportParams

	connTx chan WebsocketTx

	// Current state
	state TransportState
	// Error caused the current state; only relevant for TransportStateDisconnected and
	// TransportStateWaitBeforeReconnect, for other states it's always nil.
	stateCause error

	// stopped is set by Stop; a stopped connection never connects again.
	stopped bool

	// onReadCB, if not nil, is called for each received websocket message.
	onReadCB onReadCallback

	// onStateChangeCB, if not nil, is called for each updated state.
	onStateChangeCB onStateChangeCallback

	// connCtx and connCtxCancel are context and its cancel func for the
	// currently running connLoop. If no connLoop is running at the moment (i.e.
	// the state is TransportStateDisconnected), these are nil.
	connCtx       context.Context
	connCtxCancel context.CancelFunc

	// wsConn is the currently active websocket connection, or nil if no
	// connection is established.
	wsConn *websocket.Conn

	// reconnectNow is a channel which is only non-nil in the
	// TransportStateWaitBeforeReconnect state, and closing it causes the reconnection to
	// happen immediately
	reconnectNow chan struct{}

	mtx sync.Mutex
}

// WebsocketTx represents message to send to the websocket
type WebsocketTx struct {
	MessageType int
	Data        []byte
	Res         chan error
}

// stateChange is a state update collected under the mutex, and delivered to
// onStateChangeCB after the mutex is released.
type stateChange struct {
	oldState, state TransportState
	cause           error
}

// NewStreamTransportConn creates a new stream transport connection.
//
// Note that a client should manually call Connect on a newly created
// connection; the rationale is that clients might register state and/or
// message handler before the connection, to avoid any possible races.
func NewStreamTransportConn(params *StreamTransportParams) (*StreamTransportConn, error) {
	if params.URL == "" {
		return nil, errors.New("transport: empty URL")
	}

	c := &StreamTransportConn{
		params: *params,

		state:  TransportStateDisconnected,
		connTx: make(chan WebsocketTx, 1),
	}

	if c.params.Dialer == nil {
		c.params.Dialer = websocket.DefaultDialer
	}

	if c.params.WriteTimeout <= 0 {
		c.params.WriteTimeout = DefaultWriteTimeout
	}

	if c.params.Backoff && c.params.MaxReconnectTimeout < c.params.ReconnectTimeout {
		c.params.MaxReconnectTimeout = c.params.ReconnectTimeout
	}

	// Start writeLoop right away, before even connecting, so that an attempt to
	// write something while not connected will result in a proper error.
	go c.writeLoop()

	return c, nil
}

// Connect either starts a connection goroutine (if state is
// TransportStateDisconnected), or makes it to stop waiting a timeout and connect right
// now (if state is TransportStateWaitBeforeReconnect). For other states, returns an
// error.
//
// It doesn't wait for the connection to establish, and returns immediately.
func (c *StreamTransportConn) Connect() error {
	c.mtx.Lock()

	if c.stopped {
		c.mtx.Unlock()
		return errors.Trace(ErrStopped)
	}

	switch c.state {
	case TransportStateDisconnected:
		// NOTE that we need to enter the state TransportStateConnecting here and not in
		// connLoop, in order to prevent the race which would result in multiple
		// running connLoops.
		change := c.updateState(TransportStateConnecting, nil)
		connCtx, connCtxCancel := c.connCtx, c.connCtxCancel
		c.mtx.Unlock()

		c.notify(change)
		go c.connLoop(connCtx, connCtxCancel)

	case TransportStateWaitBeforeReconnect:
		// We're waiting for a timeout before reconnecting; force it to reconnect
		// right now, unless someone has already asked for it
		if c.reconnectNow != nil {
			close(c.reconnectNow)
			c.reconnectNow = nil
		}
		c.mtx.Unlock()

	default:
		// Already connected or connecting
		c.mtx.Unlock()
		return errors.Trace(ErrConnLoopActive)
	}

	return nil
}

// Close stops reconnection loop (if reconnection was requested), and if
// websocket connection is active at the moment, closes it as well (with the
// code 1000, i.e. normal closure). If graceful websocket closure fails, the
// forceful one is performed.
func (c *StreamTransportConn) Close() error {
	if err := c.CloseOpt(websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), true); err != nil {
		return errors.Trace(err)
	}

	return nil
}

// Stop is like Close, but also makes every subsequent Connect fail with
// ErrStopped.
func (c *StreamTransportConn) Stop() error {
	c.mtx.Lock()
	c.stopped = true
	c.mtx.Unlock()

	return errors.Trace(c.Close())
}

// CloseOpt closes the current connection (if any) with the given close
// frame; if stopReconnecting is true, the connection loop quits as well,
// otherwise the usual reconnection happens.
func (c *StreamTransportConn) CloseOpt(data []byte, stopReconnecting bool) error {
	c.mtx.Lock()
	wsConn := c.wsConn

	if c.state == TransportStateDisconnected {
		c.mtx.Unlock()
		return errors.Trace(ErrNotConnected)
	}

	// If asked to stop reconnection, cancel the conn context, which will
	// cause connLoop to quit once the current websocket connection (if any)
	// is closed, or right away if it's dialing or waiting to reconnect.
	if stopReconnecting {
		c.connCtxCancel()
	}
	c.mtx.Unlock()

	// If websocket connection is active, close it, which will cause connLoop
	// break out of readLoop (and then either reconnect or quit, depending on the
	// stopReconnecting arg)
	if wsConn != nil {
		if err := wsConn.WriteControl(websocket.CloseMessage, data, time.Now().Add(time.Second)); err != nil {
			// Graceful close failed, try to close forcefully
			return errors.Trace(wsConn.Close())
		}

		// Don't wait forever for the server to confirm the closure.
		wsConn.SetReadDeadline(time.Now().Add(closeReadTimeout))
	}

	return nil
}

// URL returns an url used for connection
func (c *StreamTransportConn) URL() string {
	return c.params.URL
}

// GetState returns connection state
func (c *StreamTransportConn) GetState() TransportState {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.state
}

type onReadCallback func(conn *StreamTransportConn, data []byte)
type onStateChangeCallback func(conn *StreamTransportConn, oldState, state TransportState, cause error)

// OnRead sets on-read callback; it should be called once right after creation
// of the StreamTransportConn by a wrapper, before the connection is
// established.
func (c *StreamTransportConn) OnRead(cb onReadCallback) {
	c.onReadCB = cb
}

// OnStateChange sets state change callback; same rules as for OnRead apply.
// The callback is never called with the internal mutex locked, so it may
// block.
func (c *StreamTransportConn) OnStateChange(cb onStateChangeCallback) {
	c.onStateChangeCB = cb
}

// Send sends data to the websocket if it's connected
func (c *StreamTransportConn) Send(ctx context.Context, data []byte) error {
	// Note that we don't check here whether the socket is connected,
	// as it's checked by the writeLoop() which will receive our message
	// from c.connTx.

	res := make(chan error, 1)

	tx := WebsocketTx{
		MessageType: websocket.TextMessage,
		Data:        data,
		Res:         res,
	}

	// Request the websocket write
	select {
	case c.connTx <- tx:
	case <-ctx.Done():
		return errors.Trace(ctx.Err())
	}

	select {
	case err := <-res:
		if err != nil {
			return errors.Annotatef(err, "sending msg")
		}
	case <-ctx.Done():
		return errors.Trace(ctx.Err())
	}

	return nil
}

// enterLeaveState should be called on leaving and entering each state. So,
// when changing state from A to B, it's called twice, like this:
//
//      enterLeaveState(A, false)
//      enterLeaveState(B, true)
func (c *StreamTransportConn) enterLeaveState(state TransportState, enter bool) {
	switch state {

	case TransportStateDisconnected:
		// connCtx and its cancel func should be present in all states but
		// TransportStateDisconnected
		if enter {
			c.connCtx = nil
			c.connCtxCancel = nil
		} else {
			c.connCtx, c.connCtxCancel = context.WithCancel(context.Background())
		}

	case TransportStateWaitBeforeReconnect:
		// reconnectNow is present only in TransportStateWaitBeforeReconnect
		if enter {
			c.reconnectNow = make(chan struct{})
		} else {
			c.reconnectNow = nil
		}

	case TransportStateConnected:
		// wsConn is present only in TransportStateConnected; it's set by the
		// calling code on enter.
		if !enter {
			c.wsConn = nil
		}
	}
}

// updateState changes the state and returns the change which should be
// passed to notify once c.mtx is unlocked. If the state is the same, nil is
// returned.
//
// NOTE: c.mtx should be locked when updateState is called.
func (c *StreamTransportConn) updateState(state TransportState, cause error) *stateChange {
	if c.state == state {
		// No need to do anything
		return nil
	}

	// Properly leave the current state
	c.enterLeaveState(c.state, false)

	oldState := c.state
	c.state = state
	c.stateCause = cause

	// Properly enter the new state
	c.enterLeaveState(c.state, true)

	return &stateChange{
		oldState: oldState,
		state:    state,
		cause:    cause,
	}
}

// setState locks the mutex, updates the state and notifies the listener.
func (c *StreamTransportConn) setState(state TransportState, cause error) {
	c.mtx.Lock()
	change := c.updateState(state, cause)
	c.mtx.Unlock()

	c.notify(change)
}

func (c *StreamTransportConn) notify(change *stateChange) {
	if change == nil || c.onStateChangeCB == nil {
		return
	}

	c.onStateChangeCB(c, change.oldState, change.state, change.cause)
}

// connLoop establishes a connection, then keeps receiving all websocket
// messages (and calls onReadCB for each of them) until the connection is
// closed, then either waits for a timeout and connects again, or just quits.
func (c *StreamTransportConn) connLoop(connCtx context.Context, connCtxCancel context.CancelFunc) {
	var connErr error

	nextReconnectTimeout := c.params.ReconnectTimeout

	defer func() {
		c.setState(TransportStateDisconnected, connErr)
	}()

cloop:
	for {
		// When the goroutine is just started by Connect(), the state is already
		// TransportStateConnecting (see Connect() for the explanation on why), in which
		// case the setState below is a no-op. When reconnecting though, the
		// state is different here, so it'll be changed to TransportStateConnecting.
		c.setState(TransportStateConnecting, nil)

		var wsConn *websocket.Conn
		wsConn, _, connErr = c.params.Dialer.DialContext(connCtx, c.params.URL, c.params.Header)
		if connErr == nil {
			// Connected successfully
			nextReconnectTimeout = c.params.ReconnectTimeout

			c.mtx.Lock()
			c.wsConn = wsConn
			change := c.updateState(TransportStateConnected, nil)
			c.mtx.Unlock()

			c.notify(change)

			// Will loop here until the websocket connection is closed
		recvLoop:
			for {
				msgType, data, err := wsConn.ReadMessage()
				if err != nil {
					connErr = err
					break recvLoop
				}

				switch msgType {
				case websocket.TextMessage, websocket.BinaryMessage:
					// Call on-read callback, if any
					if c.onReadCB != nil {
						c.onReadCB(c, data)
					}

				case websocket.CloseMessage:
					break recvLoop
				}
			}

			wsConn.Close()
		}

		// If shouldn't reconnect, we're done
		if !c.params.Reconnect {
			connCtxCancel()
		}

		// Check if we need to enter state TransportStateWaitBeforeReconnect
		c.mtx.Lock()
		var change *stateChange
		reconnectNow := c.reconnectNow
		select {
		case <-connCtx.Done():
		default:
			// Looks like we should reconnect (after a timeout), so set the
			// appropriate state
			change = c.updateState(TransportStateWaitBeforeReconnect, connErr)
			reconnectNow = c.reconnectNow
		}
		c.mtx.Unlock()

		c.notify(change)

		// Either wait for the timeout before reconnection, or quit.
		select {
		case <-connCtx.Done():
			// Enough reconnections, quit now.
			break cloop

		case <-time.After(nextReconnectTimeout):
			// Will try to reconnect one more time

		case <-reconnectNow:
			// Will try to reconnect one more time
		}

		// Stop might have been called right when the timer fired.
		select {
		case <-connCtx.Done():
			break cloop
		default:
		}

		if c.params.Backoff {
			nextReconnectTimeout += backoffIncrement
			if nextReconnectTimeout > c.params.MaxReconnectTimeout {
				nextReconnectTimeout = c.params.MaxReconnectTimeout
			}
		}
	}
}

// writeLoop receives messages from c.connTx, and tries to send them
// to the active websocket connection, if any.
func (c *StreamTransportConn) writeLoop() {
cloop:
	for {
		msg := <-c.connTx

		// Get currently active websocket connection
		c.mtx.Lock()
		wsConn := c.wsConn
		c.mtx.Unlock()

		if wsConn == nil {
			msg.Res <- errors.Trace(ErrNotConnected)
			continue cloop
		}

		// Try to write the message
		err := wsConn.SetWriteDeadline(time.Now().Add(c.params.WriteTimeout))
		if err == nil {
			err = wsConn.WriteMessage(msg.MessageType, msg.Data)
		}

		if err != nil {
			// The connection can't be written to anymore (a timed out write
			// leaves it in an undefined state); closing it makes connLoop
			// notice and reconnect.
			wsConn.Close()
		}

		// Send resulting error to the requester
		msg.Res <- errors.Trace(err)
	}
}
