/*
This is a simple app that manages orders of a single pair over the REST API
using the API keys from the config.
*/
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/juju/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/btcturk-go/btcturk-go/common"
	"github.com/btcturk-go/btcturk-go/config"
	"github.com/btcturk-go/btcturk-go/connector"
)

var (
	errUnknownMode = errors.New("unknown mode")
)

func main() {
	// We need this since getting user's home dir can fail.
	defaultConfig, err := config.DefaultFilepath()
	if err != nil {
		logrus.Fatal(err)
	}

	var configFile string

	// Define args struct for convenience.
	args := &cliArgs{}

	flag.StringVarP(&configFile, "config", "c", defaultConfig, "Configuration file")
	flag.BoolVarP(&args.Verbose, "verbose", "v", false, "Prints all debug messages to stdout")

	flag.StringVar(&args.Mode, "mode", "list", "Can be 'place', 'cancel', 'cancel-all', 'list', 'balances'")
	flag.StringVarP(&args.Pair, "pair", "p", "BTC-TRY", "Pair to trade on")
	flag.StringVar(&args.Side, "side", "buy", "Side of the order to place")
	flag.StringVar(&args.Price, "price", "", "Price of the order to place; also used to value balances")
	flag.StringVar(&args.Amount, "amount", "", "Amount of the order to place")
	flag.Int64Var(&args.OrderID, "orderid", 0, "OrderID to cancel")

	flag.Parse()

	if args.Verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if err := checkCliArgs(args); err != nil {
		logrus.Error(err)
		if errors.Cause(err) == errUnknownMode {
			flag.PrintDefaults()
		}
		os.Exit(1)
	}

	cfg, err := config.New(configFile)
	if err != nil {
		logrus.Fatal(err)
	}

	if err := cfg.Validate(); err != nil {
		logrus.Fatal(err)
	}

	app, err := NewTradeApp(args, cfg)
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

	if err := app.run(ctx); err != nil {
		logrus.Fatal(errors.ErrorStack(err))
	}
}

type TradeApp struct {
	args   *cliArgs
	client *connector.Private
}

func NewTradeApp(args *cliArgs, cfg *config.Config) (*TradeApp, error) {
	pair, err := connector.ParsePair(args.Pair)
	if err != nil {
		return nil, errors.Trace(err)
	}

	retries := cfg.Retries()
	if retries == 0 {
		retries = -1
	}

	client, err := connector.NewPrivate(connector.Params{
		Pair:        pair,
		StreamURL:   cfg.StreamURL,
		APIURL:      cfg.APIURL,
		Credentials: cfg.Credentials(),
		MaxRetries:  retries,
		RateLimiter: cfg.RateLimiter(),
	})
	if err != nil {
		return nil, errors.Trace(err)
	}

	return &TradeApp{
		args:   args,
		client: client,
	}, nil
}

func (app *TradeApp) run(ctx context.Context) error {
	defer app.client.StreamClient().Stop()
	defer app.client.RESTClient().Stop()

	switch app.args.Mode {
	case "list":
		return app.list(ctx)
	case "balances":
		return app.balances(ctx)
	case "place":
		return app.place(ctx)
	case "cancel":
		return app.cancel(ctx)
	case "cancel-all":
		return app.cancelAll(ctx)
	}

	return errUnknownMode
}

func (app *TradeApp) list(ctx context.Context) error {
	logrus.Info("Getting orders...")

	orders, err := app.client.ActiveOrders(ctx)
	if err != nil {
		return errors.Trace(err)
	}

	for _, o := range orders {
		fmt.Printf("#%d %s %s %s @ %s left %s\n", o.ID, o.Side(), o.Method, o.Quantity, o.Price, o.LeftAmount)
	}

	logrus.Infof("Orders: %d", len(orders))

	return nil
}

func (app *TradeApp) balances(ctx context.Context) error {
	logrus.Info("Getting balances...")

	var price decimal.Decimal
	if app.args.Price != "" {
		var err error
		if price, err = decimal.NewFromString(app.args.Price); err != nil {
			return errors.Annotatef(err, "price %q", app.args.Price)
		}
	}

	sum, err := app.client.Balances(ctx, price)
	if err != nil {
		return errors.Trace(err)
	}

	pair := app.client.Pair()
	fmt.Printf("%s: %s\n%s: %s\n", pair.Base, sum.Base, pair.Quote, sum.Quote)

	if !price.IsZero() {
		fmt.Printf("inventory: %s%%\n", sum.Inventory.StringFixed(2))
	}

	return nil
}

func (app *TradeApp) place(ctx context.Context) error {
	logrus.Info("Placing order...")

	price, err := decimal.NewFromString(app.args.Price)
	if err != nil {
		return errors.Annotatef(err, "price %q", app.args.Price)
	}

	amount, err := decimal.NewFromString(app.args.Amount)
	if err != nil {
		return errors.Annotatef(err, "amount %q", app.args.Amount)
	}

	results, err := app.client.PlaceOrders(ctx, []connector.OrderRequest{
		{
			Side:  common.ParseOrderSide(app.args.Side),
			Price: price,
			Size:  amount,
		},
	})
	if err != nil {
		return errors.Trace(err)
	}

	o := results[0].Order
	logrus.WithFields(logrus.Fields{
		"id":       o.ID,
		"clientID": o.NewOrderClientID,
	}).Info("Order placed")

	return nil
}

func (app *TradeApp) cancel(ctx context.Context) error {
	logrus.Info("Canceling order...")

	if err := app.client.RESTClient().CancelOrder(ctx, app.args.OrderID); err != nil {
		return errors.Trace(err)
	}

	logrus.Infof("Order canceled: %d", app.args.OrderID)

	return nil
}

func (app *TradeApp) cancelAll(ctx context.Context) error {
	logrus.Info("Canceling all orders...")

	ids, err := app.client.CancelAllOrders(ctx)
	logrus.Infof("Orders canceled: %v", ids)

	return errors.Trace(err)
}

type cliArgs struct {
	Verbose bool
	Mode    string
	Pair    string
	Side    string
	Price   string
	Amount  string
	OrderID int64
}

func checkCliArgs(a *cliArgs) error {
	switch a.Mode {
	case "":
		return errors.New("mode is not specified")
	case "place", "cancel", "cancel-all", "list", "balances":
	default:
		return errUnknownMode
	}

	if a.Pair == "" {
		return errors.New("pair is empty")
	}

	if a.Mode == "cancel" && a.OrderID == 0 {
		return errors.New("orderid is empty")
	}

	if a.Mode == "place" {
		if common.ParseOrderSide(a.Side) == common.OrderSideUnknown {
			return errors.Errorf("side %q is neither buy nor sell", a.Side)
		}
		if a.Price == "" || a.Amount == "" {
			return errors.New("price and amount are required to place an order")
		}
	}

	return nil
}
