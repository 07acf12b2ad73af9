package rest

import (
	"context"
	"testing"

	"github.com/juju/errors"

	"github.com/btcturk-go/btcturk-go/common"
)

var testCredentials = &common.Credentials{
	PublicKey:  "a7b8c9d0-public",
	PrivateKey: "c2VjcmV0LWtleS1mb3ItdGVzdHM=",
}

const balancesResp = `
{
  "data": [
    {
      "asset": "TRY",
      "assetname": "Türk Lirası",
      "balance": "1500.25",
      "locked": "500",
      "free": "1000.25",
      "orderFund": "500",
      "requestFund": "0",
      "precision": 2
    },
    {
      "asset": "BTC",
      "assetname": "Bitcoin",
      "balance": "0.5",
      "locked": "0",
      "free": "0.5",
      "orderFund": "0",
      "requestFund": "0",
      "precision": "8"
    }
  ],
  "success": true,
  "message": null,
  "code": 0
}`

func TestGetBalances(t *testing.T) {
	h := newTestHarnessRESTCreds(t, getCheckURL("/v1/users/balances"), testCredentials)

	btc := Balance{
		Asset:       "BTC",
		AssetName:   "Bitcoin",
		Balance:     dfs("0.5"),
		Locked:      dfs("0"),
		Free:        dfs("0.5"),
		OrderFund:   dfs("0"),
		RequestFund: dfs("0"),
		Precision:   8,
	}

	testCases := []testCaseREST{
		{descr: "All balances", // {{{
			do: func(c *RESTClient) (interface{}, error) {
				return c.GetBalances(context.Background())
			},
			resp: balancesResp,
			wantResult: []Balance{
				{
					Asset:       "TRY",
					AssetName:   "Türk Lirası",
					Balance:     dfs("1500.25"),
					Locked:      dfs("500"),
					Free:        dfs("1000.25"),
					OrderFund:   dfs("500"),
					RequestFund: dfs("0"),
					Precision:   2,
				},
				btc,
			},
		},
		// }}}
		{descr: "Balance of a single asset", // {{{
			do: func(c *RESTClient) (interface{}, error) {
				return c.GetBalance(context.Background(), "BTC")
			},
			resp:       balancesResp,
			wantResult: btc,
		},
		// }}}
		{descr: "Balance of a missing asset", // {{{
			do: func(c *RESTClient) (interface{}, error) {
				_, err := c.GetBalance(context.Background(), "XRP")
				return errors.IsNotFound(err), nil
			},
			resp:       balancesResp,
			wantResult: true,
		},
		// }}}
		{descr: "Bad credentials", // {{{
			do: func(c *RESTClient) (interface{}, error) {
				return c.GetBalances(context.Background())
			},
			status: 401,
			resp:   `{"success":false,"message":"Unauthorized","code":"UNAUTHORIZED"}`,
			wantError: &RequestError{
				StatusCode: 401,
				Code:       "UNAUTHORIZED",
				Message:    "Unauthorized",
			},
		},
		// }}}
	}

	h.runTestCases(testCases)
	h.close()
}
