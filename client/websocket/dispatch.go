package websocket

import (
	"github.com/sirupsen/logrus"

	"github.com/btcturk-go/btcturk-go/common"
)

// DefaultIgnoredTypes are dropped without delivery: the connection greeting,
// login results (consumed by the login handshake), the shadow frame sent
// right before an order delete, and the list of recent trades sent right
// after a trade subscription.
var DefaultIgnoredTypes = []common.MessageType{
	common.MessageTypeConnected,
	common.MessageTypeUserLogin,
	common.MessageTypeOrderDeleteStale,
	common.MessageTypeTradeSingleList,
}

// DefaultMultiTypeRoutes maps a primary type to its satellites: frames of a
// satellite type are delivered to the active subscriptions of the primary
// type.
var DefaultMultiTypeRoutes = map[common.MessageType][]common.MessageType{
	common.MessageTypeOrderUpdate: {
		common.MessageTypeOrderInsert,
		common.MessageTypeOrderDelete,
	},
}

// DispatchOpts configures routing of inbound frames. A nil field means the
// default.
type DispatchOpts struct {
	IgnoredTypes    []common.MessageType
	MultiTypeRoutes map[common.MessageType][]common.MessageType
}

// dispatcher delivers inbound messages to the listeners of the registry.
type dispatcher struct {
	reg *registry
	log logrus.FieldLogger

	ignored map[common.MessageType]struct{}
	// primaries maps a satellite type to its primary types.
	primaries map[common.MessageType][]common.MessageType
}

func newDispatcher(reg *registry, opts *DispatchOpts, log logrus.FieldLogger) *dispatcher {
	ignored := DefaultIgnoredTypes
	routes := DefaultMultiTypeRoutes

	if opts != nil {
		if opts.IgnoredTypes != nil {
			ignored = opts.IgnoredTypes
		}
		if opts.MultiTypeRoutes != nil {
			routes = opts.MultiTypeRoutes
		}
	}

	d := &dispatcher{
		reg:       reg,
		log:       log,
		ignored:   make(map[common.MessageType]struct{}, len(ignored)),
		primaries: make(map[common.MessageType][]common.MessageType),
	}

	for _, t := range ignored {
		d.ignored[t] = struct{}{}
	}

	for primary, satellites := range routes {
		for _, s := range satellites {
			d.primaries[s] = append(d.primaries[s], primary)
		}
	}

	return d
}

// isSatellite returns true if frames of the type are only routed through
// a primary type; such types can't be subscribed to directly.
func (d *dispatcher) isSatellite(t common.MessageType) bool {
	_, ok := d.primaries[t]
	return ok
}

// dispatch delivers the message and returns the number of keys it was
// delivered to.
//
// An exact (channel, event, type) match wins and nothing else gets the
// message. Otherwise, the message goes to the only key of its type (if there
// is exactly one), plus to all active keys of the primary types the
// message's type is a satellite of.
func (d *dispatcher) dispatch(msg *Message) int {
	if _, ok := d.ignored[msg.Type]; ok {
		return 0
	}

	log := d.log.WithFields(logrus.Fields{
		"type":    msg.Type,
		"channel": msg.Channel,
		"event":   msg.Event,
	})

	if msg.Type == common.MessageTypeResult {
		d.logResult(log, msg)
		return 0
	}

	key := msg.Key()
	if d.reg.has(key) {
		d.deliver(key, msg)
		return 1
	}

	delivered := make(map[Key]struct{})

	if keys := d.reg.keysOfType(msg.Type, false); len(keys) == 1 {
		d.deliver(keys[0], msg)
		delivered[keys[0]] = struct{}{}
	}

	for _, primary := range d.primaries[msg.Type] {
		for _, k := range d.reg.keysOfType(primary, true) {
			if _, ok := delivered[k]; ok {
				continue
			}
			d.deliver(k, msg)
			delivered[k] = struct{}{}
		}
	}

	if len(delivered) == 0 {
		log.WithField("payload", string(msg.Payload)).Warn("Unhandled message")
	}

	return len(delivered)
}

func (d *dispatcher) deliver(key Key, msg *Message) {
	for _, l := range d.reg.listeners(key) {
		if l.cb != nil {
			l.cb(msg)
		}
	}
}

func (d *dispatcher) logResult(log logrus.FieldLogger, msg *Message) {
	res, err := decodeResult(msg.Payload)
	if err != nil {
		log.WithError(err).Warn("Malformed result")
		return
	}

	action, sub := parseResultMessage(res.Message)
	log = log.WithField("subscription", sub)

	if !res.OK {
		log.WithField("action", action).Warn("Request rejected")
		return
	}

	switch action {
	case "join":
		log.Info("Subscription confirmed")
	case "leave":
		log.Info("Subscription cancelled")
	default:
		log.WithField("message", res.Message).Info("Result")
	}
}
