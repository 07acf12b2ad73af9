/*
This is a simple app that connects to the stream of a given pair and prints
what it receives: trades, tickers and order book changes, or, with --private,
updates of the account's orders.

Arbitrary subscriptions can be given with --sub channel:event, e.g.
--sub orderbook:ETHTRY; in that case raw payloads are printed.
*/
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/btcturk-go/btcturk-go/client/websocket"
	"github.com/btcturk-go/btcturk-go/config"
	"github.com/btcturk-go/btcturk-go/connector"
)

func main() {
	// We need this since getting user's home dir can fail.
	defaultConfig, err := config.DefaultFilepath()
	if err != nil {
		logrus.Fatal(err)
	}

	var (
		configFile string
		verbose    bool
		private    bool
		seed       bool
		pairStr    string
		subs       []string
	)

	flag.StringVarP(&configFile, "config", "c", defaultConfig, "Configuration file")
	flag.BoolVarP(&verbose, "verbose", "v", false, "Prints all debug messages and raw frames")
	flag.StringVarP(&pairStr, "pair", "p", "BTC-TRY", "Pair to watch")
	flag.BoolVar(&private, "private", false, "Log in and print updates of own orders instead of market data")
	flag.BoolVar(&seed, "seed", false, "Get the order book over REST before subscribing")
	flag.StringSliceVarP(&subs, "sub", "s", []string{}, "Subscription as channel:event. This flag can be given multiple times")

	flag.Parse()

	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	cfg, err := loadConfig(configFile, private)
	if err != nil {
		logrus.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)

	go func() {
		<-signals
		cancel()
	}()

	if len(subs) > 0 {
		err = runRaw(ctx, cfg, subs, verbose)
	} else {
		err = runConnector(ctx, cfg, pairStr, private, seed, verbose)
	}

	if err != nil && errors.Cause(err) != context.Canceled {
		logrus.Fatal(errors.ErrorStack(err))
	}
}

// loadConfig reads the config file; without --private, a missing file is
// fine and defaults are used.
func loadConfig(filename string, private bool) (*config.Config, error) {
	cfg, err := config.New(filename)
	if err != nil {
		if private || !os.IsNotExist(errors.Cause(err)) {
			return nil, errors.Trace(err)
		}
		cfg = &config.Config{}
	}

	validate := cfg.ValidatePublic
	if private {
		validate = cfg.Validate
	}

	if err := validate(); err != nil {
		return nil, errors.Trace(err)
	}

	return cfg, nil
}

func reconnectOpts(cfg *config.Config) *websocket.ReconnectOpts {
	return &websocket.ReconnectOpts{
		Reconnect:           true,
		Backoff:             true,
		ReconnectTimeout:    cfg.ReconnectTimeout(),
		MaxReconnectTimeout: 30 * time.Second,
	}
}

func maxRetries(cfg *config.Config) int {
	if n := cfg.Retries(); n > 0 {
		return n
	}

	// Zero in the config disables retrying.
	return -1
}

func runConnector(ctx context.Context, cfg *config.Config, pairStr string, private, seed, verbose bool) error {
	pair, err := connector.ParsePair(pairStr)
	if err != nil {
		return errors.Trace(err)
	}

	params := connector.Params{
		Pair:          pair,
		StreamURL:     cfg.StreamURL,
		APIURL:        cfg.APIURL,
		Credentials:   cfg.Credentials(),
		ReconnectOpts: reconnectOpts(cfg),
		MaxRetries:    maxRetries(cfg),
		RateLimiter:   cfg.RateLimiter(),
		ValidatePair:  true,
		Debug:         verbose,
	}

	type conn interface {
		Connect(ctx context.Context, onMessage connector.OnMessage) error
		Stop(ctx context.Context) error
		StreamClient() *websocket.Client
	}

	var c conn
	if private {
		c, err = connector.NewPrivate(params)
	} else {
		c, err = connector.NewPublic(connector.PublicParams{Params: params, SeedOrderBook: seed})
	}
	if err != nil {
		return errors.Trace(err)
	}

	logStates(c.StreamClient())

	logrus.Infof("Connecting to %s ...", c.StreamClient().URL())

	if err := c.Connect(ctx, printEvents); err != nil {
		return errors.Trace(err)
	}

	<-ctx.Done()

	logrus.Info("Closing connection...")

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return errors.Trace(c.Stop(stopCtx))
}

func runRaw(ctx context.Context, cfg *config.Config, subs []string, verbose bool) error {
	params := make([]websocket.SubscribeParams, 0, len(subs))
	private := false

	for _, s := range subs {
		parts := strings.SplitN(s, ":", 2)
		if len(parts) != 2 {
			return errors.NotValidf("subscription %q", s)
		}

		key, err := websocket.NewKey(parts[0], parts[1])
		if err != nil {
			return errors.Trace(err)
		}
		private = private || key.IsPrivate()

		params = append(params, websocket.SubscribeParams{
			Channel: key.Channel,
			Event:   key.Event,
			OnMessage: func(msg *websocket.Message) {
				fmt.Printf("%s %s:%s %s\n", msg.Type, msg.Channel, msg.Event, msg.Payload)
			},
			OnError: func(err error) {
				logrus.WithError(err).WithField("key", key).Error("Subscription failed")
			},
		})
	}

	c, err := websocket.NewClient(&websocket.ClientParams{
		URL:           cfg.StreamURL,
		Credentials:   cfg.Credentials(),
		ReconnectOpts: reconnectOpts(cfg),
	})
	if err != nil {
		return errors.Trace(err)
	}

	if verbose {
		c.OnRawMessage(func(data []byte) {
			logrus.WithField("data", string(data)).Debug("Message received")
		})
	}

	logStates(c)

	if private {
		err = c.Login(ctx)
	} else {
		err = c.Connect(ctx)
	}
	if err != nil {
		return errors.Trace(err)
	}

	if _, err := c.SubscribeBatch(ctx, params); err != nil {
		return errors.Trace(err)
	}

	<-ctx.Done()

	logrus.Info("Closing connection...")

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := c.UnsubscribeAll(stopCtx); err != nil {
		logrus.WithError(err).Warn("Failed to unsubscribe")
	}

	return errors.Trace(c.Stop())
}

// logStates prints state changes to the user.
func logStates(c *websocket.Client) {
	c.AddStateListener(websocket.ConnStateAny, func(prevState, curState websocket.ConnState, cause error) {
		log := logrus.WithFields(logrus.Fields{
			"from": prevState,
			"to":   curState,
		})

		if cause != nil {
			log = log.WithError(cause)
		}

		log.Info("State updated")
	})
}
