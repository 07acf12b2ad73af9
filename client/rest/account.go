package rest

import (
	"context"

	"github.com/juju/errors"
	"github.com/shopspring/decimal"

	"github.com/btcturk-go/btcturk-go/common"
)

// Balance is the balance of a single asset.
type Balance struct {
	Asset       string          `json:"asset"`
	AssetName   string          `json:"assetname"`
	Balance     decimal.Decimal `json:"balance"`
	Locked      decimal.Decimal `json:"locked"`
	Free        decimal.Decimal `json:"free"`
	OrderFund   decimal.Decimal `json:"orderFund"`
	RequestFund decimal.Decimal `json:"requestFund"`
	Precision   common.FlexInt  `json:"precision"`
}

// GetBalances returns balances of all assets of the account.
func (c *RESTClient) GetBalances(ctx context.Context) ([]Balance, error) {
	var balances []Balance

	if err := c.Get(ctx, "/v1/users/balances", nil, &balances); err != nil {
		return nil, errors.Trace(err)
	}

	return balances, nil
}

// GetBalance returns the balance of the given asset, e.g. "BTC".
func (c *RESTClient) GetBalance(ctx context.Context, asset string) (Balance, error) {
	balances, err := c.GetBalances(ctx)
	if err != nil {
		return Balance{}, errors.Trace(err)
	}

	for _, b := range balances {
		if b.Asset == asset {
			return b, nil
		}
	}

	return Balance{}, errors.NotFoundf("balance of %q", asset)
}
