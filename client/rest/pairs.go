package rest

import (
	"context"

	"github.com/juju/errors"
)

type PairDescr struct {
	ID               int      `json:"id"`
	Name             string   `json:"name"`
	NameNormalized   string   `json:"nameNormalized"`
	Status           string   `json:"status"`
	Numerator        string   `json:"numerator"`
	Denominator      string   `json:"denominator"`
	NumeratorScale   int      `json:"numeratorScale"`
	DenominatorScale int      `json:"denominatorScale"`
	HasFraction      bool     `json:"hasFraction"`
	OrderMethods     []string `json:"orderMethods"`
}

// Tradable returns true if orders can be placed on the pair.
func (p *PairDescr) Tradable() bool {
	return p.Status == "TRADING"
}

type exchangeInfo struct {
	Symbols []PairDescr `json:"symbols"`
}

func (c *RESTClient) GetPairsIndex(ctx context.Context) ([]PairDescr, error) {
	var info exchangeInfo

	if err := c.Get(ctx, "/v2/server/exchangeinfo", nil, &info); err != nil {
		return nil, errors.Trace(err)
	}

	return info.Symbols, nil
}

// GetPairDescr returns the description of the pair with the given symbol,
// either plain ("BTCUSDT") or normalized ("BTC_USDT").
func (c *RESTClient) GetPairDescr(ctx context.Context, symbol string) (PairDescr, error) {
	pairs, err := c.GetPairsIndex(ctx)
	if err != nil {
		return PairDescr{}, errors.Trace(err)
	}

	for _, p := range pairs {
		if p.Name == symbol || p.NameNormalized == symbol {
			return p, nil
		}
	}

	return PairDescr{}, errors.NotFoundf("pair %q", symbol)
}
