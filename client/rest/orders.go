package rest

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/shopspring/decimal"

	"github.com/btcturk-go/btcturk-go/common"
)

// Order is an order as returned by the order endpoints.
type Order struct {
	ID                   common.FlexInt  `json:"id"`
	DateTime             common.Millis   `json:"datetime"`
	Type                 string          `json:"type"`
	Method               string          `json:"method"`
	Price                decimal.Decimal `json:"price"`
	StopPrice            decimal.Decimal `json:"stopPrice"`
	Quantity             decimal.Decimal `json:"quantity"`
	PairSymbol           string          `json:"pairSymbol"`
	PairSymbolNormalized string          `json:"pairSymbolNormalized"`
	NewOrderClientID     string          `json:"newOrderClientId"`

	// Only set in open and all orders results.
	Time       common.Millis `json:"time"`
	UpdateTime common.Millis `json:"updateTime"`
	Status     string        `json:"status"`

	// Only set in open orders results.
	LeftAmount decimal.Decimal `json:"leftAmount"`
}

// Side returns the side of the order.
func (o *Order) Side() common.OrderSide {
	return common.ParseOrderSide(o.Type)
}

// OpenOrders contains open orders of a pair, split by side.
type OpenOrders struct {
	Asks []Order `json:"asks"`
	Bids []Order `json:"bids"`
}

// All returns asks followed by bids.
func (o *OpenOrders) All() []Order {
	all := make([]Order, 0, len(o.Asks)+len(o.Bids))
	all = append(all, o.Asks...)
	all = append(all, o.Bids...)
	return all
}

// CreateOrderParams contains params of a new order.
type CreateOrderParams struct {
	PairSymbol string
	Side       common.OrderSide
	Method     common.OrderMethod
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	// StopPrice is required for stop orders only.
	StopPrice decimal.Decimal
	// ClientOrderID defaults to a random UUID.
	ClientOrderID string
}

type createOrderBody struct {
	Quantity         json.Number `json:"quantity"`
	Price            json.Number `json:"price"`
	StopPrice        json.Number `json:"stopPrice,omitempty"`
	NewOrderClientID string      `json:"newOrderClientId"`
	OrderMethod      string      `json:"orderMethod"`
	OrderType        string      `json:"orderType"`
	PairSymbol       string      `json:"pairSymbol"`
}

func (p *CreateOrderParams) validate() error {
	if p.PairSymbol == "" {
		return errors.NotValidf("empty pair symbol")
	}

	if p.Side != common.OrderSideBuy && p.Side != common.OrderSideSell {
		return errors.NotValidf("order side %v", p.Side)
	}

	if _, ok := common.OrderMethodNames[p.Method]; !ok {
		return errors.NotValidf("order method %d", p.Method)
	}

	if p.Quantity.Sign() <= 0 {
		return errors.NotValidf("quantity %s", p.Quantity)
	}

	if p.Method.IsStop() && p.StopPrice.Sign() <= 0 {
		return errors.NotValidf("stop price %s for %s order", p.StopPrice, p.Method)
	}

	return nil
}

// CreateOrder submits a new order. The request is sent with a client order
// id, so that a retry after rate limiting can't place the order twice.
func (c *RESTClient) CreateOrder(ctx context.Context, params CreateOrderParams) (Order, error) {
	if err := params.validate(); err != nil {
		return Order{}, errors.Trace(err)
	}

	body := createOrderBody{
		Quantity:         json.Number(params.Quantity.String()),
		Price:            json.Number(params.Price.String()),
		NewOrderClientID: params.ClientOrderID,
		OrderMethod:      params.Method.String(),
		OrderType:        params.Side.String(),
		PairSymbol:       params.PairSymbol,
	}

	if body.NewOrderClientID == "" {
		body.NewOrderClientID = uuid.New().String()
	}

	if params.Method.IsStop() {
		body.StopPrice = json.Number(params.StopPrice.String())
	}

	var order Order
	if err := c.Post(ctx, "/v1/order", body, &order); err != nil {
		return Order{}, errors.Annotatef(err, "creating %s %s order on %s", params.Method, params.Side, params.PairSymbol)
	}

	return order, nil
}

// CancelOrder cancels the order with the given id.
func (c *RESTClient) CancelOrder(ctx context.Context, id int64) error {
	query := map[string]string{
		"id": strconv.FormatInt(id, 10),
	}

	if err := c.Delete(ctx, "/v1/order", query, nil); err != nil {
		return errors.Annotatef(err, "cancelling order %d", id)
	}

	return nil
}

// GetOpenOrders returns open orders of the given pair, or of all pairs if
// pairSymbol is empty.
func (c *RESTClient) GetOpenOrders(ctx context.Context, pairSymbol string) (OpenOrders, error) {
	var query map[string]string
	if pairSymbol != "" {
		query = map[string]string{"pairSymbol": pairSymbol}
	}

	var orders OpenOrders
	if err := c.Get(ctx, "/v1/openOrders", query, &orders); err != nil {
		return OpenOrders{}, errors.Trace(err)
	}

	return orders, nil
}

// CancelAllOrders cancels every open order of the given pair. It tries all
// of them even if some cancellations fail, and returns the ids of cancelled
// orders along with the first error.
func (c *RESTClient) CancelAllOrders(ctx context.Context, pairSymbol string) ([]int64, error) {
	open, err := c.GetOpenOrders(ctx, pairSymbol)
	if err != nil {
		return nil, errors.Trace(err)
	}

	var cancelled []int64
	var firstErr error

	for _, o := range open.All() {
		id := int64(o.ID)
		if err := c.CancelOrder(ctx, id); err != nil {
			c.log.WithError(err).WithField("order", id).Warn("Failed to cancel order")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		cancelled = append(cancelled, id)
	}

	return cancelled, errors.Trace(firstErr)
}

// AllOrdersParams filters the order history.
type AllOrdersParams struct {
	PairSymbol string
	// OrderID, if set, makes the exchange return orders starting from it.
	OrderID   int64
	StartTime time.Time
	EndTime   time.Time
	Page      int
	Limit     int
}

func (p *AllOrdersParams) query() map[string]string {
	q := map[string]string{
		"pairSymbol": p.PairSymbol,
	}

	if p.OrderID > 0 {
		q["orderId"] = strconv.FormatInt(p.OrderID, 10)
	}
	if !p.StartTime.IsZero() {
		q["startTime"] = strconv.FormatInt(p.StartTime.UnixNano()/int64(time.Millisecond), 10)
	}
	if !p.EndTime.IsZero() {
		q["endTime"] = strconv.FormatInt(p.EndTime.UnixNano()/int64(time.Millisecond), 10)
	}
	if p.Page > 0 {
		q["page"] = strconv.Itoa(p.Page)
	}
	if p.Limit > 0 {
		q["limit"] = strconv.Itoa(p.Limit)
	}

	return q
}

// GetAllOrders returns the order history of a pair.
func (c *RESTClient) GetAllOrders(ctx context.Context, params AllOrdersParams) ([]Order, error) {
	if params.PairSymbol == "" {
		return nil, errors.NotValidf("empty pair symbol")
	}

	var orders []Order
	if err := c.Get(ctx, "/v1/allOrders", params.query(), &orders); err != nil {
		return nil, errors.Trace(err)
	}

	return orders, nil
}

// UserTrade is a fill of one of the account's orders.
type UserTrade struct {
	ID                string          `json:"id"`
	OrderID           common.FlexInt  `json:"orderId"`
	Price             decimal.Decimal `json:"price"`
	Amount            decimal.Decimal `json:"amount"`
	Fee               decimal.Decimal `json:"fee"`
	Tax               decimal.Decimal `json:"tax"`
	NumeratorSymbol   string          `json:"numeratorSymbol"`
	DenominatorSymbol string          `json:"denominatorSymbol"`
	OrderType         string          `json:"orderType"`
	Timestamp         common.Millis   `json:"timestamp"`
}

// TradeHistoryParams filters the trade history.
type TradeHistoryParams struct {
	// Symbols are numerator assets in lower case, e.g. "btc".
	Symbols   []string
	StartDate time.Time
	EndDate   time.Time
}

// GetTradeHistory returns fills of the account's orders.
func (c *RESTClient) GetTradeHistory(ctx context.Context, params TradeHistoryParams) ([]UserTrade, error) {
	query := map[string]string{}

	if len(params.Symbols) > 0 {
		query["symbol"] = strings.Join(params.Symbols, ",")
	}
	if !params.StartDate.IsZero() {
		query["startDate"] = strconv.FormatInt(params.StartDate.UnixNano()/int64(time.Millisecond), 10)
	}
	if !params.EndDate.IsZero() {
		query["endDate"] = strconv.FormatInt(params.EndDate.UnixNano()/int64(time.Millisecond), 10)
	}

	var trades []UserTrade
	if err := c.Get(ctx, "/v1/users/transactions/trade", query, &trades); err != nil {
		return nil, errors.Trace(err)
	}

	return trades, nil
}
