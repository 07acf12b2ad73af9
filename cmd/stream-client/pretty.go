package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"

	"github.com/btcturk-go/btcturk-go/common"
	"github.com/btcturk-go/btcturk-go/connector"
)

var (
	red     = color.RedString
	yellow  = color.YellowString
	magenta = color.MagentaString
	green   = color.GreenString
	blue    = color.BlueString
	cyan    = color.CyanString
)

func printEvents(events []connector.Event) {
	for _, e := range events {
		switch {
		case e.Trade != nil:
			fmt.Println(prettyTrade(e.Trade))
		case e.Ticker != nil:
			t := e.Ticker
			fmt.Printf("%s %s bid %s ask %s last %s vol %s\n",
				blue("TICKER"), t.PairSymbol, green(t.Bid.String()), red(t.Ask.String()), t.Last, t.Volume)
		case e.BookDelta != nil:
			fmt.Println(prettyDelta(e.BookDelta, e.OrderBook))
		case e.OrderUpdate != nil:
			u := e.OrderUpdate
			fmt.Printf("%s %s #%d %s %s @ %s left %s\n",
				yellow(strings.ToUpper(u.Type.String())), u.Symbol, u.ID, sideString(u.Side()), u.Amount, u.Price, u.NumLeft)
		}
	}
}

func sideString(side common.OrderSide) string {
	if side == common.OrderSideSell {
		return red(side.String())
	}

	return green(side.String())
}

func prettyTrade(t *common.Trade) string {
	return fmt.Sprintf("%s %s %s %s @ %s (%s)",
		cyan("TRADE"), t.PairSymbol, sideString(t.Side()), t.Amount, t.Price, t.Timestamp.Time().Format("15:04:05.000"))
}

// prettyDelta formats the book change to colored, human-readable text.
func prettyDelta(d *common.BookDelta, book *common.Book) string {
	levels := func(orders []common.PublicOrder, paint func(string, ...interface{}) string) string {
		parts := make([]string, 0, len(orders))
		for _, o := range orders {
			parts = append(parts, fmt.Sprintf("%s:%s", paint(o.Price.String()), o.Amount))
		}
		return "[" + strings.Join(parts, " ") + "]"
	}

	prices := func(ps []decimal.Decimal, paint func(string, ...interface{}) string) string {
		parts := make([]string, 0, len(ps))
		for _, p := range ps {
			parts = append(parts, paint(p.String()))
		}
		return "[" + strings.Join(parts, " ") + "]"
	}

	rows := []string{
		fmt.Sprintf("%s / %s / %s / %s --- %s ChangeSet: %d -> %d",
			red("Set Ask"), magenta("Remove Ask"), green("Set Bid"), cyan("Remove Bid"),
			d.PairSymbol, d.PrevChangeSet, d.ChangeSet),
		fmt.Sprintf("%s %s", red("====="), levels(d.Asks.Set, red)),
		fmt.Sprintf("%s %s", magenta("-----"), prices(d.Asks.Remove, magenta)),
		fmt.Sprintf("%s %s", green("====="), levels(d.Bids.Set, green)),
		fmt.Sprintf("%s %s", cyan("-----"), prices(d.Bids.Remove, cyan)),
	}

	if book != nil {
		if bid, ask, ok := book.Spread(); ok {
			rows = append(rows, fmt.Sprintf("best %s / %s", green(bid.Price.String()), red(ask.Price.String())))
		}
	}

	return strings.Join(rows, "\n")
}
