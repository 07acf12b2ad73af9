package common

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/juju/errors"
)

// MessageType is the numeric tag carried as the first element of every
// websocket frame.
type MessageType int

// Message types used on the websocket feed.
const (
	MessageTypeResult           MessageType = 100
	MessageTypeRequest          MessageType = 101
	MessageTypeUserLogin        MessageType = 114
	MessageTypeSubscription     MessageType = 151
	MessageTypeTickerAll        MessageType = 401
	MessageTypeTickerPair       MessageType = 402
	MessageTypeTradeSingleList  MessageType = 421
	MessageTypeTradeSingle      MessageType = 422
	MessageTypeUserTrade        MessageType = 423
	MessageTypeOrderBookFull    MessageType = 431
	MessageTypeUserOrderMatch   MessageType = 441
	MessageTypeOrderInsert      MessageType = 451
	MessageTypeOrderDelete      MessageType = 452
	MessageTypeOrderUpdate      MessageType = 453
	MessageTypeOrderDeleteStale MessageType = 454
	MessageTypeConnected        MessageType = 991
)

// MessageTypeNames contains human-readable names for known message types.
var MessageTypeNames = map[MessageType]string{
	MessageTypeResult:           "result",
	MessageTypeRequest:          "request",
	MessageTypeUserLogin:        "user-login",
	MessageTypeSubscription:     "subscription",
	MessageTypeTickerAll:        "ticker-all",
	MessageTypeTickerPair:       "ticker-pair",
	MessageTypeTradeSingleList:  "trade-list",
	MessageTypeTradeSingle:      "trade",
	MessageTypeUserTrade:        "user-trade",
	MessageTypeOrderBookFull:    "orderbook",
	MessageTypeUserOrderMatch:   "user-order-match",
	MessageTypeOrderInsert:      "order-insert",
	MessageTypeOrderDelete:      "order-delete",
	MessageTypeOrderUpdate:      "order-update",
	MessageTypeOrderDeleteStale: "order-delete-stale",
	MessageTypeConnected:        "connected",
}

func (t MessageType) String() string {
	if name, ok := MessageTypeNames[t]; ok {
		return name
	}

	return fmt.Sprintf("type-%d", int(t))
}

// UnmarshalJSON accepts the type both as a number and as a string, the
// exchange uses both forms in payloads.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*t = 0
		return nil
	}

	v, err := strconv.Atoi(string(data))
	if err != nil {
		return errors.Annotatef(err, "parsing message type %q", data)
	}

	*t = MessageType(v)
	return nil
}

// Channel names.
const (
	ChannelTicker    = "ticker"
	ChannelTrade     = "trade"
	ChannelOrderBook = "orderbook"

	// ChannelUser is the private channel; subscribing to it requires an
	// authenticated session.
	ChannelUser = "U"
)

// Events of the private channel. Note that the exchange spells the insert
// event with a dotless i.
const (
	UserEventOrderInsert    = "orderınsert"
	UserEventOrderDelete    = "OrderDelete"
	UserEventOrderUpdate    = "OrderUpdate"
	UserEventUserOrderMatch = "UserOrderMatch"
	UserEventUserTrade      = "UserTrade"
)

// UserEventTypes maps each subscribable private event to the message type
// its frames carry. Order inserts and deletes aren't subscribable on their
// own: they arrive under the OrderUpdate subscription.
var UserEventTypes = map[string]MessageType{
	UserEventOrderUpdate:    MessageTypeOrderUpdate,
	UserEventUserOrderMatch: MessageTypeUserOrderMatch,
	UserEventUserTrade:      MessageTypeUserTrade,
}

// IsPrivateChannel returns true for channels which need a logged-in session.
func IsPrivateChannel(channel string) bool {
	return channel == ChannelUser
}
