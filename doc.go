/*
Package btcturk is the root of a client library for the BtcTurk exchange. It
contains no code; the functionality lives in subpackages.

Stream

client/websocket keeps a single connection to the websocket feed: it
reconnects after failures, logs in with the API keys after every connect, and
restores subscriptions once the connection (and, for private channels, the
session) is back. Inbound frames are dispatched to the listeners of the
matching subscription, including frames which carry no routing fields.

	c, err := websocket.NewClient(&websocket.ClientParams{
		Credentials: &common.Credentials{PublicKey: pub, PrivateKey: priv},
	})
	if err != nil {
		// handle
	}

	if err := c.Login(ctx); err != nil {
		// handle
	}

	_, err = c.Subscribe(ctx, websocket.SubscribeParams{
		Channel: common.ChannelUser,
		Event:   common.UserEventOrderUpdate,
		OnMessage: func(msg *websocket.Message) {
			// msg.Type is 451, 452 or 453
		},
	})

REST

client/rest signs private requests and retries those rejected by the rate
limiter. All requests of a client share a single cool-down: while it lasts,
new requests wait instead of hitting the limit again.

Connectors

connector combines both clients for a single pair: Public streams trades,
the ticker and the order book; Private streams order updates and manages
orders and balances.

Config

config reads API keys and endpoints from a YAML file, by default
~/.btcturk/credentials.yml:

	api_key: "..."
	secret_key: "..."
	reconnect_delay: 5s
	max_retries: 3
	requests_per_second: 5
*/
package btcturk // import "github.com/btcturk-go/btcturk-go"
