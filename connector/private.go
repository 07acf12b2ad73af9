package connector

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/juju/errors"
	"github.com/shopspring/decimal"

	"github.com/btcturk-go/btcturk-go/client/rest"
	"github.com/btcturk-go/btcturk-go/client/websocket"
	"github.com/btcturk-go/btcturk-go/common"
)

const privateListenerID = "connector-private"

var hundred = decimal.New(100, 0)

// Private logs in, forwards updates of the account's orders, and manages
// orders and balances of a pair.
type Private struct {
	*clients
}

// NewPrivate creates a Private connector; params must have credentials.
func NewPrivate(params Params) (*Private, error) {
	if params.Credentials.Empty() {
		return nil, errors.NotValidf("missing credentials")
	}

	c, err := newClients(&params, "private")
	if err != nil {
		return nil, errors.Trace(err)
	}

	return &Private{clients: c}, nil
}

// Connect opens the connection, logs in and subscribes to order updates.
// Inserts and deletes of orders come under the same subscription.
func (p *Private) Connect(ctx context.Context, onMessage OnMessage) error {
	if err := p.validatePair(ctx); err != nil {
		return errors.Trace(err)
	}

	if err := p.ws.Connect(ctx); err != nil {
		return errors.Trace(err)
	}

	if err := p.ws.Login(ctx); err != nil {
		return errors.Trace(err)
	}

	_, err := p.ws.Subscribe(ctx, websocket.SubscribeParams{
		Channel:    common.ChannelUser,
		Event:      common.UserEventOrderUpdate,
		ListenerID: privateListenerID,
		OnMessage:  p.handleOrderUpdate(onMessage),
		OnError: func(err error) {
			p.log.WithError(err).Error("Order updates subscription failed")
		},
	})
	if err != nil {
		return errors.Trace(err)
	}

	return nil
}

func (p *Private) handleOrderUpdate(onMessage OnMessage) websocket.MessageCallback {
	return func(msg *websocket.Message) {
		var upd common.OrderUpdate
		if err := json.Unmarshal(msg.Payload, &upd); err != nil {
			p.log.WithError(err).WithField("type", msg.Type).Warn("Failed to decode order update")
			return
		}

		if upd.Type == 0 {
			upd.Type = msg.Type
		}

		onMessage([]Event{{OrderUpdate: &upd}})
	}
}

// OrderRequest describes an order to place on the connector's pair.
type OrderRequest struct {
	Side common.OrderSide
	// Method defaults to a limit order.
	Method    common.OrderMethod
	Price     decimal.Decimal
	Size      decimal.Decimal
	StopPrice decimal.Decimal
	// ClientOrderID defaults to a random UUID.
	ClientOrderID string
}

// OrderResult is the outcome of placing a single order.
type OrderResult struct {
	Order rest.Order
	Err   error
}

// PlaceOrders places all orders concurrently. Results are in the order of
// requests; the returned error is the first failure, if any.
func (p *Private) PlaceOrders(ctx context.Context, reqs []OrderRequest) ([]OrderResult, error) {
	results := make([]OrderResult, len(reqs))

	var wg sync.WaitGroup
	wg.Add(len(reqs))

	for i := range reqs {
		go func(i int) {
			defer wg.Done()

			req := reqs[i]
			order, err := p.rest.CreateOrder(ctx, rest.CreateOrderParams{
				PairSymbol:    p.pair.Symbol(),
				Side:          req.Side,
				Method:        req.Method,
				Quantity:      req.Size,
				Price:         req.Price,
				StopPrice:     req.StopPrice,
				ClientOrderID: req.ClientOrderID,
			})

			results[i] = OrderResult{Order: order, Err: errors.Trace(err)}
		}(i)
	}

	wg.Wait()

	for i, res := range results {
		if res.Err != nil {
			return results, errors.Annotatef(res.Err, "order #%d", i)
		}
	}

	return results, nil
}

// ActiveOrders returns open orders of the pair, asks first.
func (p *Private) ActiveOrders(ctx context.Context) ([]rest.Order, error) {
	open, err := p.rest.GetOpenOrders(ctx, p.pair.Symbol())
	if err != nil {
		return nil, errors.Trace(err)
	}

	return open.All(), nil
}

// CancelAllOrders cancels all open orders of the pair and returns ids of the
// cancelled ones.
func (p *Private) CancelAllOrders(ctx context.Context) ([]int64, error) {
	ids, err := p.rest.CancelAllOrders(ctx, p.pair.Symbol())
	return ids, errors.Trace(err)
}

// BalanceSummary is the account's holdings of both assets of the pair.
type BalanceSummary struct {
	// Base and Quote are total balances (free and locked).
	Base  decimal.Decimal
	Quote decimal.Decimal

	// Inventory is the share of the base asset in the total value, in
	// percent, valued at the given price.
	Inventory decimal.Decimal
}

// Balances returns balances of the pair's assets, valuing the base asset at
// lastPrice. A missing asset counts as zero.
func (p *Private) Balances(ctx context.Context, lastPrice decimal.Decimal) (BalanceSummary, error) {
	balances, err := p.rest.GetBalances(ctx)
	if err != nil {
		return BalanceSummary{}, errors.Trace(err)
	}

	var sum BalanceSummary
	for _, b := range balances {
		total := b.Free.Add(b.Locked)

		switch {
		case matchAsset(b, p.pair.Base):
			sum.Base = total
		case matchAsset(b, p.pair.Quote):
			sum.Quote = total
		}
	}

	baseValue := sum.Base.Mul(lastPrice)
	totalValue := baseValue.Add(sum.Quote)

	if !totalValue.IsZero() {
		sum.Inventory = baseValue.Div(totalValue).Mul(hundred)
	}

	return sum, nil
}

func matchAsset(b rest.Balance, asset string) bool {
	return strings.EqualFold(b.Asset, asset) || strings.EqualFold(b.AssetName, asset)
}

// Stop unsubscribes, cancels all open orders of the pair and closes the
// connection. The connector can't be used afterwards.
func (p *Private) Stop(ctx context.Context) error {
	if err := p.ws.UnsubscribeAll(ctx); err != nil {
		p.log.WithError(err).Warn("Failed to unsubscribe")
	}

	_, cancelErr := p.rest.CancelAllOrders(ctx, p.pair.Symbol())
	if cancelErr != nil {
		p.log.WithError(cancelErr).Error("Failed to cancel orders")
	}

	if err := p.stop(ctx); err != nil {
		return errors.Trace(err)
	}

	return errors.Trace(cancelErr)
}
