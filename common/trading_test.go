package common

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCredentialsSign(t *testing.T) {
	creds := &Credentials{
		PublicKey:  "a7b8c9d0-public",
		PrivateKey: "c2VjcmV0LWtleS1mb3ItdGVzdHM=",
	}

	sig, err := creds.Sign("3000")
	assert.NoError(t, err)
	assert.Equal(t, "YYiSeiWurp7mHWKZUj5zSSU9athjk5ZXmnjJuVcL4dE=", sig)

	sig, err = creds.Sign("1600000000000")
	assert.NoError(t, err)
	assert.Equal(t, "nWHbYvQrotUNWjIO+5VM1/DfAU+QuoScgdzHkw4hyyE=", sig)

	_, err = (&Credentials{PublicKey: "pub", PrivateKey: "not base64!"}).Sign("1")
	assert.Error(t, err)

	var empty *Credentials
	assert.True(t, empty.Empty())
	_, err = empty.Sign("1")
	assert.Error(t, err)
}

func TestParseOrderSide(t *testing.T) {
	assert.Equal(t, OrderSideBuy, ParseOrderSide("buy"))
	assert.Equal(t, OrderSideBuy, ParseOrderSide("Buy"))
	assert.Equal(t, OrderSideSell, ParseOrderSide("SELL"))
	assert.Equal(t, OrderSideUnknown, ParseOrderSide("hold"))
	assert.Equal(t, "sell", OrderSideSell.String())
}

func TestMillis(t *testing.T) {
	var v struct {
		A Millis `json:"a"`
		B Millis `json:"b"`
		C Millis `json:"c"`
		D Millis `json:"d"`
	}

	err := json.Unmarshal([]byte(`{"a":1600000000123,"b":"1600000000456","c":1600000000789.0,"d":null}`), &v)
	assert.NoError(t, err)
	assert.Equal(t, Millis(1600000000123), v.A)
	assert.Equal(t, Millis(1600000000456), v.B)
	assert.Equal(t, Millis(1600000000789), v.C)
	assert.Equal(t, Millis(0), v.D)

	assert.Equal(t, time.Unix(1600000000, 123*int64(time.Millisecond)), v.A.Time())

	assert.Error(t, json.Unmarshal([]byte(`{"a":"yesterday"}`), &v))
}

func TestFlexIntAndMessageType(t *testing.T) {
	var v struct {
		N1 FlexInt     `json:"n1"`
		N2 FlexInt     `json:"n2"`
		T1 MessageType `json:"t1"`
		T2 MessageType `json:"t2"`
	}

	err := json.Unmarshal([]byte(`{"n1":42,"n2":"43","t1":422,"t2":"151"}`), &v)
	assert.NoError(t, err)
	assert.Equal(t, FlexInt(42), v.N1)
	assert.Equal(t, FlexInt(43), v.N2)
	assert.Equal(t, MessageTypeTradeSingle, v.T1)
	assert.Equal(t, MessageTypeSubscription, v.T2)

	assert.Equal(t, "trade", MessageTypeTradeSingle.String())
	assert.Equal(t, "type-777", MessageType(777).String())

	assert.Error(t, json.Unmarshal([]byte(`{"n1":1.5}`), &v))
}

func TestTradeAndOrderUpdateSides(t *testing.T) {
	var trade Trade
	err := json.Unmarshal([]byte(`{"channel":"trade","event":"BTCTRY","type":422,"PS":"BTCTRY","D":1600000000000,"I":"100","A":"0.1","P":"50000","S":1}`), &trade)
	assert.NoError(t, err)
	assert.Equal(t, "trade", trade.Channel)
	assert.Equal(t, MessageTypeTradeSingle, trade.Type)
	assert.Equal(t, "100", trade.ID)
	assert.Equal(t, OrderSideSell, trade.Side())

	trade.RawSide = 0
	assert.Equal(t, OrderSideBuy, trade.Side())

	u := OrderUpdate{OrderType: 0}
	assert.Equal(t, OrderSideBuy, u.Side())
	u.OrderType = 1
	assert.Equal(t, OrderSideSell, u.Side())

	assert.True(t, IsPrivateChannel(ChannelUser))
	assert.False(t, IsPrivateChannel(ChannelTrade))
	assert.True(t, StopLimitOrder.IsStop())
	assert.False(t, LimitOrder.IsStop())
}
