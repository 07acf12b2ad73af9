package rest

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/juju/errors"
	"github.com/shopspring/decimal"

	"github.com/btcturk-go/btcturk-go/common"
)

// OrderBookSnapshot is the order book of a pair at some moment.
type OrderBookSnapshot struct {
	Timestamp common.Millis
	Bids      []common.PublicOrder
	Asks      []common.PublicOrder
}

type orderbookServer struct {
	// Timestamp comes as a float, e.g. 1600000000000.0
	Timestamp decimal.Decimal     `json:"timestamp"`
	Bids      [][]decimal.Decimal `json:"bids"`
	Asks      [][]decimal.Decimal `json:"asks"`
}

// GetOrderBook returns the order book of the given pair. If limit is
// positive, only that many levels of each side are returned.
func (c *RESTClient) GetOrderBook(ctx context.Context, pairSymbol string, limit int) (OrderBookSnapshot, error) {
	query := map[string]string{"pairSymbol": pairSymbol}
	if limit > 0 {
		query["limit"] = strconv.Itoa(limit)
	}

	var raw json.RawMessage
	if err := c.Get(ctx, "/v2/orderbook", query, &raw); err != nil {
		return OrderBookSnapshot{}, errors.Trace(err)
	}

	return decodeOrderBookResponse(raw)
}

func decodeOrderBookResponse(in json.RawMessage) (OrderBookSnapshot, error) {
	var (
		ob  OrderBookSnapshot
		res orderbookServer
	)

	err := json.Unmarshal(in, &res)
	if err != nil {
		return OrderBookSnapshot{}, errors.Trace(err)
	}

	ob.Timestamp = common.Millis(res.Timestamp.IntPart())
	ob.Asks = make([]common.PublicOrder, 0, len(res.Asks))
	ob.Bids = make([]common.PublicOrder, 0, len(res.Bids))

	for i, v := range res.Asks {
		if len(v) != 2 {
			return OrderBookSnapshot{},
				errors.Errorf("Failed to decode order book response: ask #%d: expected tuple of 2 elements, got %v", i, v)
		}

		ob.Asks = append(ob.Asks, common.PublicOrder{
			Price:  v[0],
			Amount: v[1],
		})
	}

	for i, v := range res.Bids {
		if len(v) != 2 {
			return OrderBookSnapshot{},
				errors.Errorf("Failed to decode order book response: bid #%d: expected tuple of 2 elements, got %v", i, v)
		}

		ob.Bids = append(ob.Bids, common.PublicOrder{
			Price:  v[0],
			Amount: v[1],
		})
	}

	return ob, nil
}
