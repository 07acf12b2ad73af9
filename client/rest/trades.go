package rest

import (
	"context"
	"strconv"

	"github.com/juju/errors"
	"github.com/shopspring/decimal"

	"github.com/btcturk-go/btcturk-go/common"
)

// PublicTrade is a trade of the public trade history.
type PublicTrade struct {
	Pair           string          `json:"pair"`
	PairNormalized string          `json:"pairNormalized"`
	Numerator      string          `json:"numerator"`
	Denominator    string          `json:"denominator"`
	Timestamp      common.Millis   `json:"date"`
	ID             string          `json:"tid"`
	Price          decimal.Decimal `json:"price"`
	Amount         decimal.Decimal `json:"amount"`
	RawSide        string          `json:"side"`
}

// Side returns the taker side of the trade.
func (t *PublicTrade) Side() common.OrderSide {
	return common.ParseOrderSide(t.RawSide)
}

// GetTrades returns latest trades of the given pair, newest first. If last is
// positive, at most that many trades are returned.
func (c *RESTClient) GetTrades(ctx context.Context, pairSymbol string, last int) ([]PublicTrade, error) {
	query := map[string]string{"pairSymbol": pairSymbol}
	if last > 0 {
		query["last"] = strconv.Itoa(last)
	}

	var trades []PublicTrade
	if err := c.Get(ctx, "/v2/trades", query, &trades); err != nil {
		return nil, errors.Trace(err)
	}

	return trades, nil
}
