package common

import (
	"bytes"
	"strconv"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/shopspring/decimal"
)

// OrderSide represents the order side; e.g. "buy" or "sell".
type OrderSide int32

func (os OrderSide) String() string {
	return OrderSideNames[os]
}

const (
	OrderSideUnknown OrderSide = iota
	OrderSideBuy
	OrderSideSell
)

// OrderSideNames contains the names the exchange uses for OrderSide.
var OrderSideNames = map[OrderSide]string{
	OrderSideSell:    "sell",
	OrderSideBuy:     "buy",
	OrderSideUnknown: "unknown",
}

// ParseOrderSide parses a side as returned by the exchange ("Buy", "sell", ...).
func ParseOrderSide(s string) OrderSide {
	switch strings.ToLower(s) {
	case "buy":
		return OrderSideBuy
	case "sell":
		return OrderSideSell
	}

	return OrderSideUnknown
}

// OrderMethod represents how an order is matched; e.g. "limit" or "market".
type OrderMethod int32

// The following constants define all order methods the exchange accepts.
const (
	LimitOrder OrderMethod = iota
	MarketOrder
	StopLimitOrder
	StopMarketOrder
)

// OrderMethodNames contains the names the exchange uses for OrderMethod.
var OrderMethodNames = map[OrderMethod]string{
	LimitOrder:      "limit",
	MarketOrder:     "market",
	StopLimitOrder:  "stoplimit",
	StopMarketOrder: "stopmarket",
}

func (m OrderMethod) String() string {
	return OrderMethodNames[m]
}

// IsStop returns true if the method needs a stop price.
func (m OrderMethod) IsStop() bool {
	return m == StopLimitOrder || m == StopMarketOrder
}

// Millis is a unix timestamp in milliseconds. The exchange sends it either as
// a JSON number or as a string, both are accepted.
type Millis int64

func (m *Millis) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*m = 0
		return nil
	}

	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		// Some endpoints send it as a float, e.g. 1600000000000.0
		f, ferr := strconv.ParseFloat(string(data), 64)
		if ferr != nil {
			return errors.Annotatef(err, "parsing timestamp %q", data)
		}
		v = int64(f)
	}

	*m = Millis(v)
	return nil
}

// FlexInt is an integer which the exchange sends either as a JSON number or
// as a string.
type FlexInt int64

func (v *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*v = 0
		return nil
	}

	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return errors.Annotatef(err, "parsing integer %q", data)
	}

	*v = FlexInt(n)
	return nil
}

// Time converts the timestamp to time.Time.
func (m Millis) Time() time.Time {
	return time.Unix(0, int64(m)*int64(time.Millisecond))
}

// NowMillis returns the current time as a millisecond timestamp.
func NowMillis() Millis {
	return Millis(time.Now().UnixNano() / int64(time.Millisecond))
}

// PublicOrder represents a single price level of the order book.
type PublicOrder struct {
	Price  decimal.Decimal `json:"P"`
	Amount decimal.Decimal `json:"A"`
}

// Routing contains the fields by which the exchange tags a pushed payload.
type Routing struct {
	Channel string      `json:"channel"`
	Event   string      `json:"event"`
	Type    MessageType `json:"type"`
}

// Trade is a single public trade (message type 422).
type Trade struct {
	Routing

	PairSymbol string          `json:"PS"`
	Timestamp  Millis          `json:"D"`
	ID         string          `json:"I"`
	Amount     decimal.Decimal `json:"A"`
	Price      decimal.Decimal `json:"P"`
	// RawSide is 0 for buys and 1 for sells.
	RawSide int `json:"S"`
}

// Side returns the taker side of the trade.
func (t *Trade) Side() OrderSide {
	if t.RawSide == 1 {
		return OrderSideSell
	}

	return OrderSideBuy
}

// Ticker is the ticker of a single pair (message type 402).
type Ticker struct {
	Routing

	PairSymbol   string          `json:"PS"`
	PairID       int             `json:"PId"`
	Bid          decimal.Decimal `json:"B"`
	Ask          decimal.Decimal `json:"A"`
	BidAmount    decimal.Decimal `json:"BA"`
	AskAmount    decimal.Decimal `json:"AA"`
	High         decimal.Decimal `json:"H"`
	Low          decimal.Decimal `json:"L"`
	Last         decimal.Decimal `json:"LA"`
	Open         decimal.Decimal `json:"O"`
	Volume       decimal.Decimal `json:"V"`
	Average      decimal.Decimal `json:"AV"`
	Daily        decimal.Decimal `json:"D"`
	DailyPercent decimal.Decimal `json:"DP"`
	Denominator  string          `json:"DS"`
	Numerator    string          `json:"NS"`
}

// OrderBook is a full order book snapshot (message type 431).
type OrderBook struct {
	Routing

	PairSymbol string        `json:"PS"`
	ChangeSet  int64         `json:"CS"`
	Asks       []PublicOrder `json:"AO"`
	Bids       []PublicOrder `json:"BO"`
}

// OrderUpdate is pushed on the private channel for order lifecycle events
// (message types 451, 452 and 453).
type OrderUpdate struct {
	Type             MessageType     `json:"type"`
	PairID           int             `json:"pairId"`
	Symbol           string          `json:"symbol"`
	ID               int64           `json:"id"`
	Method           int             `json:"method"`
	UserID           int64           `json:"userId"`
	OrderType        int             `json:"orderType"`
	Price            decimal.Decimal `json:"price"`
	Amount           decimal.Decimal `json:"amount"`
	NumLeft          decimal.Decimal `json:"numLeft"`
	DenomLeft        decimal.Decimal `json:"denomLeft"`
	NewOrderClientID string          `json:"newOrderClientId"`
}

// Side returns the side of the updated order; orderType 0 is a buy.
func (u *OrderUpdate) Side() OrderSide {
	if u.OrderType == 0 {
		return OrderSideBuy
	}

	return OrderSideSell
}
