// Command ledgerctl is an operator CLI for the ledger HTTP API.
//
//	ledgerctl [-addr URL] [-key KEY] [-json] <command> [args]
//
// Commands:
//
//	markets                         list markets
//	market <id>                     show one market
//	trades <id>                     list a market's trades
//	positions <wallet>              list a wallet's positions
//	create -q Q -outcomes A,B ...   open a market
//	trade -market ID -outcome N -amount X [-wallet W]
//	resolve -market ID -winner N [-evidence TEXT]
//	watch [-channels a,b] [-markets 1,2]  stream ledger events until interrupted
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alanyoungcy/predictionledger/internal/domain"
	"github.com/alanyoungcy/predictionledger/internal/feed"
)

const defaultAddr = "http://localhost:8080"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type globals struct {
	addr    string
	key     string
	json    bool
	timeout time.Duration
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ledgerctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var g globals
	fs.StringVar(&g.addr, "addr", envOr("LEDGER_ADDR", defaultAddr), "ledger API base URL")
	fs.StringVar(&g.key, "key", os.Getenv("LEDGER_ADMIN_API_KEY"), "admin API key for resolve")
	fs.BoolVar(&g.json, "json", false, "print raw JSON instead of tables")
	fs.DurationVar(&g.timeout, "timeout", 10*time.Second, "request timeout")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: ledgerctl [flags] markets|market|trades|positions|create|trade|resolve|watch [args]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	c := newClient(g.addr, g.key, g.timeout)
	cmd, rest := fs.Arg(0), fs.Args()[1:]

	var err error
	switch cmd {
	case "markets":
		err = cmdMarkets(ctx, c, g, stdout)
	case "market":
		err = cmdMarket(ctx, c, g, rest, stdout)
	case "trades":
		err = cmdTrades(ctx, c, g, rest, stdout, stderr)
	case "positions":
		err = cmdPositions(ctx, c, g, rest, stdout)
	case "create":
		err = cmdCreate(ctx, c, g, rest, stdout, stderr)
	case "trade":
		err = cmdTrade(ctx, c, g, rest, stdout, stderr)
	case "resolve":
		err = cmdResolve(ctx, c, g, rest, stdout, stderr)
	case "watch":
		err = cmdWatch(ctx, g, rest, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "ledgerctl: unknown command %q\n", cmd)
		fs.Usage()
		return 2
	}

	var usage usageError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &usage):
		fmt.Fprintln(stderr, "ledgerctl:", usage.msg)
		return 2
	case errors.Is(err, flag.ErrHelp):
		return 0
	default:
		fmt.Fprintln(stderr, err)
		return 1
	}
}

type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func oneArg(args []string, name string) (string, error) {
	if len(args) != 1 || args[0] == "" {
		return "", usageError{msg: "expected exactly one " + name}
	}
	return args[0], nil
}

func cmdMarkets(ctx context.Context, c *client, g globals, w io.Writer) error {
	markets, err := c.markets(ctx)
	if err != nil {
		return err
	}
	if g.json {
		return printJSON(w, markets)
	}
	renderMarkets(w, markets)
	return nil
}

func cmdMarket(ctx context.Context, c *client, g globals, args []string, w io.Writer) error {
	id, err := oneArg(args, "market id")
	if err != nil {
		return err
	}
	m, err := c.market(ctx, id)
	if err != nil {
		return err
	}
	if g.json {
		return printJSON(w, m)
	}
	renderMarket(w, m)
	return nil
}

func cmdTrades(ctx context.Context, c *client, g globals, args []string, w, stderr io.Writer) error {
	fs := flag.NewFlagSet("trades", flag.ContinueOnError)
	fs.SetOutput(stderr)
	wallet := fs.String("wallet", "", "list this wallet's trades across markets instead")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var (
		trades []domain.Trade
		err    error
	)
	if *wallet != "" {
		if fs.NArg() != 0 {
			return usageError{msg: "trades takes a market id or -wallet, not both"}
		}
		trades, err = c.walletTrades(ctx, *wallet)
	} else {
		var id string
		if id, err = oneArg(fs.Args(), "market id"); err != nil {
			return err
		}
		trades, err = c.trades(ctx, id)
	}
	if err != nil {
		return err
	}
	if g.json {
		return printJSON(w, trades)
	}
	renderTrades(w, trades)
	return nil
}

func cmdPositions(ctx context.Context, c *client, g globals, args []string, w io.Writer) error {
	wallet, err := oneArg(args, "wallet address")
	if err != nil {
		return err
	}
	positions, err := c.positions(ctx, wallet)
	if err != nil {
		return err
	}
	if g.json {
		return printJSON(w, positions)
	}
	renderPositions(w, wallet, positions)
	return nil
}

func cmdCreate(ctx context.Context, c *client, g globals, args []string, w, stderr io.Writer) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	fs.SetOutput(stderr)
	question := fs.String("q", "", "market question")
	outcomes := fs.String("outcomes", "Yes,No", "comma-separated outcome names")
	ends := fs.String("ends", "720h", "end time as RFC3339 or a duration from now")
	if err := fs.Parse(args); err != nil {
		return err
	}

	endTime, err := parseEndTime(*ends, time.Now())
	if err != nil {
		return usageError{msg: err.Error()}
	}
	m, err := c.createMarket(ctx, *question, splitCSV(*outcomes), endTime)
	if err != nil {
		return err
	}
	if g.json {
		return printJSON(w, m)
	}
	renderMarket(w, m)
	return nil
}

func cmdTrade(ctx context.Context, c *client, g globals, args []string, w, stderr io.Writer) error {
	fs := flag.NewFlagSet("trade", flag.ContinueOnError)
	fs.SetOutput(stderr)
	marketID := fs.String("market", "", "market id")
	outcome := fs.Int("outcome", -1, "outcome index")
	amount := fs.Float64("amount", 0, "stake amount")
	wallet := fs.String("wallet", "", "wallet address (optional)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *marketID == "" {
		return usageError{msg: "trade: -market is required"}
	}

	res, err := c.placeTrade(ctx, *marketID, *outcome, *amount, *wallet)
	if err != nil {
		return err
	}
	if g.json {
		return printJSON(w, res)
	}
	fmt.Fprintf(w, "trade %s placed: %s on %q\n", res.Trade.ID, res.Trade.Amount.String(), res.Market.Outcomes[res.Trade.OutcomeIndex].Name)
	renderMarket(w, res.Market)
	return nil
}

func cmdResolve(ctx context.Context, c *client, g globals, args []string, w, stderr io.Writer) error {
	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	marketID := fs.String("market", "", "market id")
	winner := fs.Int("winner", -1, "winning outcome index")
	evidence := fs.String("evidence", "", "resolution evidence")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *marketID == "" {
		return usageError{msg: "resolve: -market is required"}
	}

	m, err := c.resolve(ctx, *marketID, *winner, *evidence)
	if err != nil {
		return err
	}
	if g.json {
		return printJSON(w, m)
	}
	renderMarket(w, m)
	return nil
}

func cmdWatch(ctx context.Context, g globals, args []string, w, stderr io.Writer) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	channels := fs.String("channels", "", "comma-separated channels (markets,trades,resolutions)")
	markets := fs.String("markets", "", "comma-separated market ids")
	if err := fs.Parse(args); err != nil {
		return err
	}

	target, err := feed.StreamURL(g.addr)
	if err != nil {
		return usageError{msg: err.Error()}
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	f := feed.NewLedgerFeed(feed.Config{
		URL:      target,
		Channels: splitCSV(*channels),
		Markets:  splitCSV(*markets),
	}, func(_ context.Context, evt domain.LedgerEvent) {
		if g.json {
			_ = printJSON(w, evt)
			return
		}
		fmt.Fprintln(w, formatEvent(evt))
	}, logger)

	if err := f.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseEndTime accepts an RFC3339 timestamp or a duration added to now and
// returns Unix milliseconds.
func parseEndTime(s string, now time.Time) (int64, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UnixMilli(), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid end time %q: want RFC3339 or a duration like 720h", s)
	}
	return now.Add(d).UnixMilli(), nil
}
