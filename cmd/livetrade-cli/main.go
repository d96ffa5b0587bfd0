package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"livetrade/pkg/livetrade"
)

const version = "0.1.0"

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: livetrade-cli [-server URL] <command> [args]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  version                          Print the CLI version\n")
	fmt.Fprintf(os.Stderr, "  start                            Start the adapter and log in\n")
	fmt.Fprintf(os.Stderr, "  stop                             Stop the adapter\n")
	fmt.Fprintf(os.Stderr, "  buy  <symbol> <qty> [price]      Buy; omit price for a market order\n")
	fmt.Fprintf(os.Stderr, "  sell <symbol> <qty> [price]      Sell; omit price for a market order\n")
	fmt.Fprintf(os.Stderr, "  cancel <id>                      Cancel an order\n")
	fmt.Fprintf(os.Stderr, "  order <id> [-wait]               Show an order, optionally until terminal\n")
	fmt.Fprintf(os.Stderr, "  orders                           List pending orders\n")
	fmt.Fprintf(os.Stderr, "  account                          Show account status, balance and holdings\n")
	fmt.Fprintf(os.Stderr, "  journal [state]                  List journaled orders (default fulfilled)\n")
	fmt.Fprintf(os.Stderr, "  events                           Follow order events\n")
	fmt.Fprintf(os.Stderr, "\n")
	flag.PrintDefaults()
}

func main() {
	defaultServer := "http://127.0.0.1:8090"
	if v := os.Getenv("LIVETRADE_SERVER"); v != "" {
		defaultServer = v
	}
	server := flag.String("server", defaultServer, "livetrade-server base URL")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		os.Exit(1)
	}

	if err := run(context.Background(), livetrade.NewClient(*server), args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, c *livetrade.Client, args []string) error {
	switch args[0] {
	case "version":
		fmt.Printf("livetrade-cli %s\n", version)
		return nil

	case "start":
		st, err := c.Start(ctx)
		if err != nil {
			return err
		}
		return printJSON(st)

	case "stop":
		st, err := c.Stop(ctx)
		if err != nil {
			return err
		}
		return printJSON(st)

	case "buy", "sell":
		req, err := parseOrder(args)
		if err != nil {
			return err
		}
		o, err := c.SubmitOrder(ctx, req)
		if err != nil {
			return err
		}
		return printJSON(o)

	case "cancel":
		if len(args) != 2 {
			return fmt.Errorf("usage: cancel <id>")
		}
		return c.CancelOrder(ctx, args[1])

	case "order":
		fs := flag.NewFlagSet("order", flag.ContinueOnError)
		wait := fs.Bool("wait", false, "poll until the order is terminal")
		if len(args) < 2 {
			return fmt.Errorf("usage: order <id> [-wait]")
		}
		if err := fs.Parse(args[2:]); err != nil {
			return err
		}
		var (
			o   livetrade.Order
			err error
		)
		if *wait {
			o, err = c.WaitOrder(ctx, args[1], 200*time.Millisecond)
		} else {
			o, err = c.GetOrder(ctx, args[1])
		}
		if err != nil {
			return err
		}
		return printJSON(o)

	case "orders":
		orders, err := c.PendingOrders(ctx)
		if err != nil {
			return err
		}
		return printJSON(orders)

	case "account":
		a, err := c.GetAccount(ctx)
		if err != nil {
			return err
		}
		return printJSON(a)

	case "journal":
		state := "fulfilled"
		if len(args) > 1 {
			state = args[1]
		}
		records, err := c.Journal(ctx, state)
		if err != nil {
			return err
		}
		return printJSON(records)

	case "events":
		return c.Events(ctx, func(e livetrade.Event) bool {
			fmt.Printf("%s %-12s %s %s %d/%d\n", e.Order.UpdatedAt.Format(time.TimeOnly), e.Type,
				e.Order.ID, e.Order.Symbol, e.Order.FilledQty, e.Order.Qty)
			return true
		})
	}

	flag.Usage()
	return fmt.Errorf("unknown command: %s", args[0])
}

// parseOrder turns "buy AAPL 100 [150.25]" into a request.
func parseOrder(args []string) (livetrade.OrderRequest, error) {
	if len(args) < 3 || len(args) > 4 {
		return livetrade.OrderRequest{}, fmt.Errorf("usage: %s <symbol> <qty> [price]", args[0])
	}
	qty, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil {
		return livetrade.OrderRequest{}, fmt.Errorf("invalid qty %q: %w", args[2], err)
	}
	req := livetrade.OrderRequest{Side: args[0], Symbol: args[1], Qty: qty, Type: "market"}
	if len(args) == 4 {
		price, err := strconv.ParseFloat(args[3], 64)
		if err != nil {
			return livetrade.OrderRequest{}, fmt.Errorf("invalid price %q: %w", args[3], err)
		}
		req.Price = price
		req.Type = "limit"
	}
	return req, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
