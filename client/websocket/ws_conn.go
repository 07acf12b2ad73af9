package websocket

import (
	"context"
	"fmt"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"

	"github.com/btcturk-go/btcturk-go/client/websocket/internal"
	"github.com/btcturk-go/btcturk-go/common"
)

// ConnState represents the websocket connection state
type ConnState int

// The following constants represent every possible ConnState.
const (
	// ConnStateDisconnected means we're disconnected and not trying to connect.
	ConnStateDisconnected ConnState = iota

	// ConnStateWaitBeforeReconnect means the connection was closed (or failed
	// to open), and we're waiting for a timeout before connecting again.
	ConnStateWaitBeforeReconnect

	// ConnStateConnecting means we're dialing the server right now.
	ConnStateConnecting

	// ConnStateOpen means the connection is open; the client might be logging
	// in and restoring subscriptions though.
	ConnStateOpen

	// ConnStateClosing means Stop was called and we're waiting for the
	// connection to close.
	ConnStateClosing

	// ConnStateAny can be used with AddStateListener() and AddStateListenerOpt()
	// in order to listen for all states.
	ConnStateAny = -1
)

// ConnStateNames contains human-readable names for connection states.
var ConnStateNames = map[ConnState]string{
	ConnStateDisconnected:        "disconnected",
	ConnStateWaitBeforeReconnect: "wait-before-reconnect",
	ConnStateConnecting:          "connecting",
	ConnStateOpen:                "open",
	ConnStateClosing:             "closing",
}

func (s ConnState) String() string {
	if name, ok := ConnStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state-%d", int(s))
}

// Client is a websocket client; see NewClient. All its methods are safe for
// concurrent use, but none of them may be called from the listeners (message
// or state ones), since those are invoked by the same goroutine which serves
// the calls.
type Client struct {
	params    ClientParams
	transport *internal.StreamTransportConn
	log       logrus.FieldLogger

	reg  *registry
	disp *dispatcher

	onRawMessage func(data []byte)
	onReconnect  func()

	// internalEvents is a channel of events handled by eventLoop. See
	// internalEvent struct.
	internalEvents chan internalEvent

	// All fields below are only accessed by eventLoop.

	// Current state
	state ConnState

	// Error caused the current state; only relevant for
	// ConnStateDisconnected and ConnStateWaitBeforeReconnect, for other
	// states it's always nil.
	stateCause error

	stopped       bool
	authenticated bool
	pendingAuth   *pendingAuth

	// connectWaiters are Connect calls waiting for the connection to open.
	connectWaiters []chan<- error

	// openedBefore is true if the connection was ever open; used to tell
	// reconnects from the first connection.
	openedBefore bool

	stateListeners map[ConnState][]stateListener
}

// internalEvent represents an event handled in eventLoop. Each field
// represents one kind of the event, and only a single field should be non-nil.
type internalEvent struct {
	// rxData contains data received from the server via websocket.
	rxData []byte
	// transportStateUpdate represents an update of transport layer state.
	transportStateUpdate *transportStateUpdate

	reqAddStateListener *reqAddStateListener
	reqConnState        *reqConnState
	reqConnect          *reqConnect
	reqLogin            *reqLogin
	reqAuthenticated    *reqAuthenticated
	reqSubscribe        *reqSubscribe
	reqUnsubscribe      *reqUnsubscribe
	reqUnsubscribeAll   *reqUnsubscribeAll
	reqStop             *reqStop
}

// reqAddStateListener is a request to add state listener
type reqAddStateListener struct {
	state ConnState
	cb    StateCallback
	opt   StateListenerOpt

	result chan<- struct{}
}

// reqConnState is a client request of conn state via ConnState().
type reqConnState struct {
	result chan<- ConnState
}

// reqConnect registers a Connect call; waiter gets the result of the
// connection attempt, or is resolved right away if the connection is
// already open or the client is stopped.
type reqConnect struct {
	waiter chan<- error
	result chan<- struct{}
}

type reqLogin struct {
	result chan<- error
}

type reqAuthenticated struct {
	result chan<- bool
}

type reqSubscribe struct {
	ctx    context.Context
	params []SubscribeParams
	result chan<- subscribeResult
}

type subscribeResult struct {
	subs []*Subscription
	err  error
}

type reqUnsubscribe struct {
	ctx        context.Context
	key        Key
	listenerID string
	result     chan<- error
}

type reqUnsubscribeAll struct {
	ctx    context.Context
	result chan<- error
}

type reqStop struct {
	result chan<- struct{}
}

// transportStateUpdate is an update of transport layer state.
type transportStateUpdate struct {
	oldState internal.TransportState
	state    internal.TransportState

	cause error
}

// Connect opens the connection and waits until it's open. If the connection
// is already open, it returns nil right away; if the client is waiting to
// reconnect, it reconnects immediately.
//
// If the attempt fails, *ConnectionError is returned, but the client keeps
// reconnecting in background (unless reconnection is disabled); another
// Connect call can be used to wait for the next attempt.
func (c *Client) Connect(ctx context.Context) error {
	waiter := make(chan error, 1)
	registered := make(chan struct{})

	c.internalEvents <- internalEvent{
		reqConnect: &reqConnect{
			waiter: waiter,
			result: registered,
		},
	}
	<-registered

	select {
	case err := <-waiter:
		// Already open, or stopped
		return errors.Trace(err)
	default:
	}

	if err := c.transport.Connect(); err != nil {
		switch errors.Cause(err) {
		case internal.ErrConnLoopActive:
			// Already connecting; just wait for the result.
		case internal.ErrStopped:
			return errors.Trace(ErrStopped)
		default:
			return errors.Trace(err)
		}
	}

	select {
	case err := <-waiter:
		return errors.Trace(err)
	case <-ctx.Done():
		return errors.Trace(ctx.Err())
	}
}

// Stop closes the connection and disables reconnection, including a pending
// reconnect. Pending Connect and Login calls fail with ErrStopped. A stopped
// client can't be connected again.
func (c *Client) Stop() error {
	result := make(chan struct{})

	c.internalEvents <- internalEvent{
		reqStop: &reqStop{
			result: result,
		},
	}
	<-result

	if err := c.transport.Stop(); err != nil {
		if errors.Cause(err) == internal.ErrNotConnected {
			return nil
		}
		return errors.Trace(err)
	}

	return nil
}

// Subscribe registers a listener and sends a join frame for its key. The
// connection must be open, and private keys need a logged-in session.
//
// It returns once the join frame is written; the exchange confirms the
// subscription asynchronously, which is only logged.
func (c *Client) Subscribe(ctx context.Context, params SubscribeParams) (*Subscription, error) {
	subs, err := c.SubscribeBatch(ctx, []SubscribeParams{params})
	if err != nil {
		return nil, errors.Trace(err)
	}

	return subs[0], nil
}

// SubscribeBatch is like Subscribe, but for several listeners. Listeners are
// registered in order; on the first failure, subscriptions made so far are
// returned along with the error.
func (c *Client) SubscribeBatch(ctx context.Context, params []SubscribeParams) ([]*Subscription, error) {
	result := make(chan subscribeResult, 1)

	c.internalEvents <- internalEvent{
		reqSubscribe: &reqSubscribe{
			ctx:    ctx,
			params: params,
			result: result,
		},
	}

	res := <-result
	return res.subs, errors.Trace(res.err)
}

func (c *Client) unsubscribe(ctx context.Context, key Key, listenerID string) error {
	result := make(chan error, 1)

	c.internalEvents <- internalEvent{
		reqUnsubscribe: &reqUnsubscribe{
			ctx:        ctx,
			key:        key,
			listenerID: listenerID,
			result:     result,
		},
	}

	return <-result
}

// UnsubscribeAll removes all listeners and sends leave frames for all keys.
// Unless ClientParams.SkipLeaveAcks is set, it waits for all leave frames to
// be written.
func (c *Client) UnsubscribeAll(ctx context.Context) error {
	result := make(chan error, 1)

	c.internalEvents <- internalEvent{
		reqUnsubscribeAll: &reqUnsubscribeAll{
			ctx:    ctx,
			result: result,
		},
	}

	return <-result
}

// ConnState returns current client connection state.
func (c *Client) ConnState() ConnState {
	result := make(chan ConnState, 1)

	c.internalEvents <- internalEvent{
		reqConnState: &reqConnState{
			result: result,
		},
	}

	return <-result
}

// Authenticated returns true if the client is logged in over the current
// connection.
func (c *Client) Authenticated() bool {
	result := make(chan bool, 1)

	c.internalEvents <- internalEvent{
		reqAuthenticated: &reqAuthenticated{
			result: result,
		},
	}

	return <-result
}

// StateCallback is a signature of a state listener. Arguments conn, oldState
// and state are self-descriptive; cause is the error which caused the current
// state. Cause is relevant only for ConnStateDisconnected and
// ConnStateWaitBeforeReconnect (in which case it's either the reason of failure to
// connect, or reason of disconnection), for other states it's always nil.
//
// See AddStateListener.
type StateCallback func(prevState, curState ConnState, cause error)

type StateListenerOpt struct {
	// If OneOff is true, the listener will only be called once; otherwise it'll
	// be called every time the requested state becomes active.
	OneOff bool

	// If CallImmediately is true, and the state being subscribed to is active
	// at the moment, the callback will be called immediately (with the "old"
	// state being equal to the new one)
	CallImmediately bool
}

// AddStateListener registers a new listener for the given state. Listener is
// registered with the default options (zero values of all fields in
// StateListenerOpt). All registered callbacks for all states (and all
// messages) will be called by the same internal goroutine, i.e. they are
// never called concurrently with each other.
//
// The listeners shouldn't block; a blocked listener will cause the whole
// stream connection to stuck. If you need to block there, consider spawning a
// goroutine for that.
//
// To subscribe to all state changes, use ConnStateAny as a state.
func (c *Client) AddStateListener(state ConnState, cb StateCallback) {
	c.AddStateListenerOpt(state, cb, StateListenerOpt{})
}

// AddStateListenerOpt is like AddStateListener, but also takes additional
// options; see StateListenerOpt for details.
func (c *Client) AddStateListenerOpt(state ConnState, cb StateCallback, opt StateListenerOpt) {
	result := make(chan struct{})

	c.internalEvents <- internalEvent{
		reqAddStateListener: &reqAddStateListener{
			state: state,
			cb:    cb,
			opt:   opt,

			result: result,
		},
	}

	<-result
}

// ConnClosedCallback defines the callback function for OnConnClosed.
type ConnClosedCallback func(state ConnState, cause error)

// OnConnClosed allows the client to set a callback for when the connection is lost.
// The new state of the client could be ConnStateDisconnected or ConnStateWaitBeforeReconnect.
func (c *Client) OnConnClosed(cb ConnClosedCallback) {
	c.AddStateListener(ConnStateDisconnected, func(_, curState ConnState, cause error) {
		cb(curState, cause)
	})
	c.AddStateListener(ConnStateWaitBeforeReconnect, func(_, curState ConnState, cause error) {
		cb(curState, cause)
	})
}

// stateListener wraps a state change callback and a flag of whether the
// callback is one-off (one-off listeners are only called once, on the next
// event)
type stateListener struct {
	cb  StateCallback
	opt StateListenerOpt
}

// NOTE: updateState should only be called from the eventLoop.
func (c *Client) updateState(state ConnState, cause error) {
	if c.state == state {
		// No need to do anything
		return
	}

	oldState := c.state
	c.state = state
	c.stateCause = cause

	c.log.WithFields(logrus.Fields{
		"from":  oldState,
		"to":    state,
		"cause": cause,
	}).Debug("State changed")

	// Collect all listeners to call now
	listeners := append(c.stateListeners[state], c.stateListeners[ConnStateAny]...)

	// Remove one-off listeners
	c.stateListeners[state] = removeOneOff(c.stateListeners[state])
	c.stateListeners[ConnStateAny] = removeOneOff(c.stateListeners[ConnStateAny])

	for _, sl := range listeners {
		sl.cb(oldState, state, cause)
	}
}

// removeOneOff takes a slice of listeners and returns a new one, with one-off
// listeners removed.
func removeOneOff(listeners []stateListener) []stateListener {
	newListeners := []stateListener{}

	for _, sl := range listeners {
		if !sl.opt.OneOff {
			newListeners = append(newListeners, sl)
		}
	}

	return newListeners
}

// eventLoop handles all internal events like transport state change, received
// data, or client calls to subscribe. See internalEvent struct.
func (c *Client) eventLoop() {
	for {
		event := <-c.internalEvents

		switch {
		case event.transportStateUpdate != nil:
			c.handleTransportState(event.transportStateUpdate)

		case event.rxData != nil:
			c.handleData(event.rxData)

		case event.reqAddStateListener != nil:
			al := event.reqAddStateListener
			sl := stateListener{
				cb:  al.cb,
				opt: al.opt,
			}

			// Determine whether the callback should be called right now
			callNow := al.opt.CallImmediately && (al.state == c.state || al.state == ConnStateAny)

			// Update stored listeners if needed
			if !al.opt.OneOff || !callNow {
				c.stateListeners[al.state] = append(c.stateListeners[al.state], sl)
			}

			if callNow {
				sl.cb(c.state, c.state, c.stateCause)
			}

			al.result <- struct{}{}

		case event.reqConnState != nil:
			event.reqConnState.result <- c.state

		case event.reqAuthenticated != nil:
			event.reqAuthenticated.result <- c.authenticated

		case event.reqConnect != nil:
			req := event.reqConnect
			switch {
			case c.stopped:
				req.waiter <- errors.Trace(ErrStopped)
			case c.state == ConnStateOpen:
				req.waiter <- nil
			default:
				c.connectWaiters = append(c.connectWaiters, req.waiter)
			}
			close(req.result)

		case event.reqLogin != nil:
			c.handleLoginRequest(event.reqLogin)

		case event.reqSubscribe != nil:
			req := event.reqSubscribe
			subs, err := c.subscribeInternal(req.ctx, req.params)
			req.result <- subscribeResult{subs: subs, err: err}

		case event.reqUnsubscribe != nil:
			req := event.reqUnsubscribe
			req.result <- c.unsubscribeInternal(req.ctx, req.key, req.listenerID)

		case event.reqUnsubscribeAll != nil:
			req := event.reqUnsubscribeAll
			req.result <- c.unsubscribeAllInternal(req.ctx)

		case event.reqStop != nil:
			c.stopInternal()
			close(event.reqStop.result)
		}
	}
}

// NOTE: handleTransportState should only be called from the eventLoop.
func (c *Client) handleTransportState(tsu *transportStateUpdate) {
	if tsu.oldState == internal.TransportStateConnected {
		c.connectionLost()
	}

	switch tsu.state {
	case internal.TransportStateConnecting:
		if c.stopped {
			return
		}
		c.updateState(ConnStateConnecting, nil)

	case internal.TransportStateConnected:
		c.updateState(ConnStateOpen, nil)
		c.resolveConnectWaiters(nil)
		c.onOpen()

	case internal.TransportStateWaitBeforeReconnect, internal.TransportStateDisconnected:
		cause := errors.Trace(tsu.cause)

		// Waiters are only left while the connection isn't open, so this
		// was a failed attempt.
		if len(c.connectWaiters) > 0 {
			c.resolveConnectWaiters(&ConnectionError{URL: c.params.URL, Cause: tsu.cause})
		}

		if c.stopped {
			c.updateState(ConnStateDisconnected, cause)
			return
		}

		if tsu.state == internal.TransportStateWaitBeforeReconnect {
			c.updateState(ConnStateWaitBeforeReconnect, cause)
		} else {
			c.updateState(ConnStateDisconnected, cause)
		}

		c.log.WithError(tsu.cause).WithField("state", c.state).Warn("Connection closed")
	}
}

// connectionLost resets everything bound to the current connection.
//
// NOTE: connectionLost should only be called from the eventLoop.
func (c *Client) connectionLost() {
	c.authenticated = false
	c.reg.deactivateAll()

	if c.pendingAuth != nil {
		c.pendingAuth.resolve(errors.Trace(ErrConnectionLost))
		c.pendingAuth = nil
	}
}

// onOpen is called each time the connection is open: logs in if the client
// has credentials, and restores subscriptions. Private subscriptions are
// restored once the login succeeds.
//
// NOTE: onOpen should only be called from the eventLoop.
func (c *Client) onOpen() {
	if !c.params.Credentials.Empty() {
		c.startLogin()
	}

	c.replay(false)

	if c.openedBefore {
		c.log.Info("Reconnected")
		if c.onReconnect != nil {
			c.onReconnect()
		}
	}
	c.openedBefore = true
}

// replay sends join frames for all registered keys which aren't joined over
// the current connection; public ones only if private is false, private
// ones only otherwise.
//
// NOTE: replay should only be called from the eventLoop.
func (c *Client) replay(private bool) {
	for _, key := range c.reg.keys() {
		if key.IsPrivate() != private {
			continue
		}

		if err := c.sendSubscribe(context.Background(), key, true); err != nil {
			c.log.WithError(err).WithField("key", key).Warn("Failed to restore subscription")
			c.notifyListenersErr(key, err)
			continue
		}

		c.reg.setActive(key, true)
	}
}

func (c *Client) notifyListenersErr(key Key, err error) {
	for _, l := range c.reg.listeners(key) {
		if l.onError != nil {
			l.onError(err)
		}
	}
}

// NOTE: resolveConnectWaiters should only be called from the eventLoop.
func (c *Client) resolveConnectWaiters(err error) {
	for _, w := range c.connectWaiters {
		w <- err
	}
	c.connectWaiters = nil
}

// NOTE: handleData should only be called from the eventLoop.
func (c *Client) handleData(data []byte) {
	if c.onRawMessage != nil {
		c.onRawMessage(data)
	}

	msg, err := decodeMessage(data)
	if err != nil {
		c.log.WithError(err).WithField("data", string(data)).Warn("Malformed message")
		return
	}

	if msg.Type == common.MessageTypeUserLogin && c.pendingAuth != nil {
		c.handleLoginResult(msg)
		return
	}

	c.disp.dispatch(msg)
}

// NOTE: subscribeInternal should only be called from eventLoop.
func (c *Client) subscribeInternal(ctx context.Context, params []SubscribeParams) ([]*Subscription, error) {
	subs := make([]*Subscription, 0, len(params))

	for _, p := range params {
		key, err := p.key()
		if err != nil {
			return subs, errors.Trace(err)
		}

		if c.disp.isSatellite(key.Type) {
			return subs, errors.NotValidf("subscribing to %s: type %d is only routed through its primary type", key, key.Type)
		}

		if c.stopped {
			return subs, errors.Trace(ErrStopped)
		}

		if c.state != ConnStateOpen {
			return subs, errors.Trace(&SubscriptionError{Key: key, Join: true, Cause: ErrNotConnected})
		}

		if key.IsPrivate() && !c.authenticated {
			return subs, errors.Trace(&SubscriptionError{Key: key, Join: true, Cause: ErrNotAuthenticated})
		}

		id, added := c.reg.add(key, &listener{
			id:      p.ListenerID,
			cb:      p.OnMessage,
			onError: p.OnError,
		})

		sub := &Subscription{key: key, listenerID: id, client: c}

		if !added {
			subs = append(subs, sub)
			continue
		}

		if err := c.sendSubscribe(ctx, key, true); err != nil {
			c.reg.remove(key, id)
			return subs, errors.Trace(err)
		}

		c.reg.setActive(key, true)
		subs = append(subs, sub)
	}

	return subs, nil
}

// NOTE: unsubscribeInternal should only be called from eventLoop.
func (c *Client) unsubscribeInternal(ctx context.Context, key Key, listenerID string) error {
	removed, last := c.reg.remove(key, listenerID)
	if !removed || !last {
		return nil
	}

	if c.state != ConnStateOpen {
		// Nothing to leave; the key just won't be restored.
		return nil
	}

	return errors.Trace(c.sendSubscribe(ctx, key, false))
}

// NOTE: unsubscribeAllInternal should only be called from eventLoop.
func (c *Client) unsubscribeAllInternal(ctx context.Context) error {
	keys := c.reg.removeAll()

	if c.state != ConnStateOpen || len(keys) == 0 {
		return nil
	}

	if c.params.SkipLeaveAcks {
		go func() {
			for _, key := range keys {
				if err := c.sendSubscribe(context.Background(), key, false); err != nil {
					c.log.WithError(err).WithField("key", key).Debug("Failed to leave")
				}
			}
		}()
		return nil
	}

	var firstErr error
	for _, key := range keys {
		if err := c.sendSubscribe(ctx, key, false); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return errors.Trace(firstErr)
}

// sendSubscribe sends a join or leave frame for the key.
func (c *Client) sendSubscribe(ctx context.Context, key Key, join bool) error {
	data, err := encodeSubscribe(key, join)
	if err != nil {
		return errors.Trace(err)
	}

	if err := c.transport.Send(ctx, data); err != nil {
		cause := err
		if errors.Cause(err) == internal.ErrNotConnected {
			cause = ErrNotConnected
		}
		return errors.Trace(&SubscriptionError{Key: key, Join: join, Cause: cause})
	}

	return nil
}

// NOTE: stopInternal should only be called from eventLoop.
func (c *Client) stopInternal() {
	if c.stopped {
		return
	}

	c.stopped = true

	c.resolveConnectWaiters(errors.Trace(ErrStopped))

	if c.pendingAuth != nil {
		c.pendingAuth.resolve(errors.Trace(ErrStopped))
		c.pendingAuth = nil
	}

	if c.state != ConnStateDisconnected {
		c.updateState(ConnStateClosing, nil)
	}
}
