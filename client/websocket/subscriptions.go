package websocket

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/juju/errors"

	"github.com/btcturk-go/btcturk-go/common"
)

// Key identifies a logical subscription. The same key may be subscribed by
// several independent listeners.
type Key struct {
	Channel string
	Event   string
	Type    common.MessageType
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s(%d)", k.Channel, k.Event, int(k.Type))
}

// IsPrivate returns true if subscribing to the key needs a logged-in session.
func (k Key) IsPrivate() bool {
	return common.IsPrivateChannel(k.Channel)
}

// channelTypes maps public channels to the type of frames they deliver.
var channelTypes = map[string]common.MessageType{
	common.ChannelTrade:     common.MessageTypeTradeSingle,
	common.ChannelTicker:    common.MessageTypeTickerPair,
	common.ChannelOrderBook: common.MessageTypeOrderBookFull,
}

// NewKey returns the key of the given channel and event, with the message
// type the exchange uses for that channel. For the private channel, the type
// is determined by the event.
func NewKey(channel, event string) (Key, error) {
	key := Key{Channel: channel, Event: event}

	if common.IsPrivateChannel(channel) {
		t, ok := common.UserEventTypes[event]
		if !ok {
			return Key{}, errors.NotValidf("private event %q", event)
		}
		key.Type = t
		return key, nil
	}

	t, ok := channelTypes[channel]
	if !ok {
		return Key{}, errors.NotValidf("channel %q", channel)
	}
	key.Type = t

	return key, nil
}

// MessageCallback is called for every message delivered to a subscription.
type MessageCallback func(msg *Message)

// ErrorCallback is called when a subscription fails asynchronously, e.g. it
// couldn't be restored after a reconnect.
type ErrorCallback func(err error)

// SubscribeParams describes a single listener of a key.
type SubscribeParams struct {
	Channel string
	Event   string
	// Type defaults to the type NewKey determines for Channel and Event.
	Type common.MessageType

	// ListenerID identifies the listener within the key. Subscribing with a
	// key and a ListenerID which are already registered is a no-op which
	// returns the existing subscription. If empty, a random id is generated,
	// i.e. every call registers a new listener.
	ListenerID string

	OnMessage MessageCallback
	OnError   ErrorCallback
}

func (p *SubscribeParams) key() (Key, error) {
	if p.Type != 0 {
		return Key{Channel: p.Channel, Event: p.Event, Type: p.Type}, nil
	}

	key, err := NewKey(p.Channel, p.Event)
	if err != nil {
		return Key{}, errors.Trace(err)
	}

	return key, nil
}

// Subscription is a handle of a registered listener.
type Subscription struct {
	key        Key
	listenerID string
	client     *Client
}

// Key returns the key the listener is registered for.
func (s *Subscription) Key() Key {
	return s.key
}

// ListenerID returns the id of the listener.
func (s *Subscription) ListenerID() string {
	return s.listenerID
}

// Unsubscribe removes the listener. When the last listener of a key is
// removed, a leave frame is sent for the key and it won't be restored after
// reconnects anymore.
func (s *Subscription) Unsubscribe(ctx context.Context) error {
	return errors.Trace(s.client.unsubscribe(ctx, s.key, s.listenerID))
}

type listener struct {
	id      string
	cb      MessageCallback
	onError ErrorCallback
}

// subscription is a registry entry: all listeners of a key.
type subscription struct {
	key       Key
	listeners []*listener

	// active is true if the join frame for the key was sent over the current
	// connection.
	active bool
}

// registry keeps track of subscribed keys and their listeners; it's what
// gets replayed after a reconnect. All methods are safe for concurrent use.
type registry struct {
	mtx sync.Mutex

	subs map[Key]*subscription
	// order holds keys in the order of their first registration.
	order []Key
}

func newRegistry() *registry {
	return &registry{
		subs: make(map[Key]*subscription),
	}
}

// add registers a listener for the key. If the listener id is empty, a new
// one is generated. Returns the listener id and false if a listener with
// this id was already registered for the key.
func (r *registry) add(key Key, l *listener) (string, bool) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	if l.id == "" {
		l.id = uuid.New().String()
	}

	sub, ok := r.subs[key]
	if !ok {
		sub = &subscription{key: key}
		r.subs[key] = sub
		r.order = append(r.order, key)
	}

	for _, existing := range sub.listeners {
		if existing.id == l.id {
			return l.id, false
		}
	}

	sub.listeners = append(sub.listeners, l)

	return l.id, true
}

// remove unregisters a listener; removed is false if there was no such
// listener, last is true if the key has no listeners anymore (in which case
// it's removed from the registry).
func (r *registry) remove(key Key, id string) (removed, last bool) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	sub, ok := r.subs[key]
	if !ok {
		return false, false
	}

	for i, l := range sub.listeners {
		if l.id == id {
			sub.listeners = append(sub.listeners[:i:i], sub.listeners[i+1:]...)
			removed = true
			break
		}
	}

	if len(sub.listeners) == 0 {
		r.deleteKey(key)
		return removed, true
	}

	return removed, false
}

// removeAll drops every key and returns the keys which were registered.
func (r *registry) removeAll() []Key {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	keys := r.order
	r.subs = make(map[Key]*subscription)
	r.order = nil

	return keys
}

// NOTE: r.mtx should be locked when deleteKey is called.
func (r *registry) deleteKey(key Key) {
	delete(r.subs, key)

	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
}

// keys returns all keys with at least one listener, in registration order.
func (r *registry) keys() []Key {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	keys := make([]Key, 0, len(r.order))
	for _, k := range r.order {
		if sub := r.subs[k]; sub != nil && len(sub.listeners) > 0 {
			keys = append(keys, k)
		}
	}

	return keys
}

// has returns true if the key has listeners.
func (r *registry) has(key Key) bool {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	sub, ok := r.subs[key]
	return ok && len(sub.listeners) > 0
}

// keysOfType returns all registered keys with the given message type; if
// activeOnly is true, only keys joined over the current connection are
// returned.
func (r *registry) keysOfType(t common.MessageType, activeOnly bool) []Key {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	var keys []Key
	for _, k := range r.order {
		sub := r.subs[k]
		if k.Type != t || sub == nil || len(sub.listeners) == 0 {
			continue
		}
		if activeOnly && !sub.active {
			continue
		}
		keys = append(keys, k)
	}

	return keys
}

// listeners returns a copy of the key's listeners.
func (r *registry) listeners(key Key) []*listener {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	sub, ok := r.subs[key]
	if !ok {
		return nil
	}

	return append([]*listener(nil), sub.listeners...)
}

func (r *registry) setActive(key Key, active bool) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	if sub, ok := r.subs[key]; ok {
		sub.active = active
	}
}

// deactivateAll marks all keys as not joined; called on disconnect.
func (r *registry) deactivateAll() {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	for _, sub := range r.subs {
		sub.active = false
	}
}
