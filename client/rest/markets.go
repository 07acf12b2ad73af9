package rest

import (
	"context"

	"github.com/juju/errors"
	"github.com/shopspring/decimal"

	"github.com/btcturk-go/btcturk-go/common"
)

// Ticker is a 24h summary of a pair.
type Ticker struct {
	Pair              string          `json:"pair"`
	PairNormalized    string          `json:"pairNormalized"`
	Timestamp         common.Millis   `json:"timestamp"`
	Last              decimal.Decimal `json:"last"`
	High              decimal.Decimal `json:"high"`
	Low               decimal.Decimal `json:"low"`
	Bid               decimal.Decimal `json:"bid"`
	Ask               decimal.Decimal `json:"ask"`
	Open              decimal.Decimal `json:"open"`
	Volume            decimal.Decimal `json:"volume"`
	Average           decimal.Decimal `json:"average"`
	Daily             decimal.Decimal `json:"daily"`
	DailyPercent      decimal.Decimal `json:"dailyPercent"`
	DenominatorSymbol string          `json:"denominatorSymbol"`
	NumeratorSymbol   string          `json:"numeratorSymbol"`
}

// GetTickers returns tickers of all pairs.
func (c *RESTClient) GetTickers(ctx context.Context) ([]Ticker, error) {
	var tickers []Ticker

	if err := c.Get(ctx, "/v2/ticker", nil, &tickers); err != nil {
		return nil, errors.Trace(err)
	}

	return tickers, nil
}

// GetTicker returns the ticker of the given pair, e.g. "BTCUSDT".
func (c *RESTClient) GetTicker(ctx context.Context, pairSymbol string) (Ticker, error) {
	var tickers []Ticker

	query := map[string]string{"pairSymbol": pairSymbol}
	if err := c.Get(ctx, "/v2/ticker", query, &tickers); err != nil {
		return Ticker{}, errors.Trace(err)
	}

	if len(tickers) == 0 {
		return Ticker{}, errors.NotFoundf("ticker of %q", pairSymbol)
	}

	return tickers[0], nil
}
