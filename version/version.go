// Package version holds the SDK version reported to the exchange.
package version // import "github.com/btcturk-go/btcturk-go/version"

import "fmt"

// Version is the current version of the SDK.
const Version = "0.3.0"

// UserAgent returns the User-Agent string sent with REST requests and the
// websocket handshake.
func UserAgent() string {
	return fmt.Sprintf("btcturk-go@%s", Version)
}
