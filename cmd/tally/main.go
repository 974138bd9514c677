package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tally/internal/backend"
	"tally/internal/config"
	"tally/internal/core"
	"tally/internal/log"
	"tally/internal/services"
	"tally/internal/store"
)

const dateFormat = "2006-01-02"

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: tally <command> [flags]

Account commands:
  accounts                      list accounts with current balances
  account-add                   create an account with an opening balance
  account-edit                  rename an account and/or restate its balance
  account-delete                delete an account and its history

Transaction commands:
  txn-add                       record an income, expense or transfer
  txn-delete                    reverse a transaction by id
  txns                          list transactions in a date range

Report commands:
  networth                      daily net worth series
  flows                         daily income/expense totals for a range
  breakdown                     expense totals by category
  summary                       savings rate, mean monthly expense, FIRE ratio
  years                         years with recorded activity
  categories                    category taxonomy for one flow direction

Run 'tally <command> -h' for command flags.
`)
}

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	// Reports print to stdout; logs stay on stderr and quiet.
	logger := log.New(log.Config{
		Component: log.ComponentApp,
		Handler: slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelWarn,
		}),
	})
	log.SetDefault(logger)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(1)
	}

	b, err := backend.New(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "backend error:", err)
		os.Exit(1)
	}
	defer b.Close()

	var events services.EventPublisher
	if b.Events != nil {
		events = b.Events
	}
	svc := services.NewLedgerService(b.Snapshots, b.Transactions, b.Categories, events,
		services.WithCascadeDelete(cfg.CascadeDelete),
		services.WithReportCache(cfg.CacheSize, cfg.CacheTTL))
	defer svc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// TALLY_IDENTITY selects the ledger namespace for multi-user setups;
	// unset it for single-tenant use of the configured namespace.
	resolver := store.StaticResolver{Default: cfg.Namespace}
	ns, err := resolver.Resolve(ctx, os.Getenv("TALLY_IDENTITY"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	if err := run(ctx, svc, ns, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, svc *services.LedgerService, ns, command string, args []string) error {
	switch command {
	case "accounts":
		rows, err := svc.Overview(ctx, ns)
		if err != nil {
			return err
		}
		for _, row := range rows {
			fmt.Printf("%-20s %12.2f  %s\n", row.Name, core.Round2(row.Balance), row.LastUpdate.Format(dateFormat))
		}
		return nil

	case "account-add":
		fs := flag.NewFlagSet(command, flag.ExitOnError)
		name := fs.String("name", "", "account name")
		balance := fs.String("balance", "0", "opening balance")
		date := fs.String("date", "", "baseline date (YYYY-MM-DD, default today)")
		fs.Parse(args)
		at, err := parseDate(*date)
		if err != nil {
			return err
		}
		return svc.AddAccount(ctx, ns, *name, *balance, at)

	case "account-edit":
		fs := flag.NewFlagSet(command, flag.ExitOnError)
		name := fs.String("name", "", "current account name")
		newName := fs.String("new-name", "", "new account name (default unchanged)")
		balance := fs.String("balance", "", "restated balance (default unchanged)")
		date := fs.String("date", "", "baseline date (YYYY-MM-DD, default today)")
		fs.Parse(args)
		at, err := parseDate(*date)
		if err != nil {
			return err
		}
		target := *newName
		if target == "" {
			target = *name
		}
		return svc.EditAccount(ctx, ns, *name, target, *balance, at)

	case "account-delete":
		fs := flag.NewFlagSet(command, flag.ExitOnError)
		name := fs.String("name", "", "account name")
		fs.Parse(args)
		return svc.DeleteAccount(ctx, ns, *name)

	case "txn-add":
		fs := flag.NewFlagSet(command, flag.ExitOnError)
		kind := fs.String("kind", "", "income, expense or transfer")
		amount := fs.String("amount", "", "amount (always positive)")
		date := fs.String("date", "", "transaction date (YYYY-MM-DD, default today)")
		account := fs.String("account", "", "account (income/expense)")
		category := fs.Int("category", 0, "category id (income/expense)")
		subcategory := fs.Int("subcategory", 0, "subcategory id (income/expense)")
		from := fs.String("from", "", "source account (transfer)")
		to := fs.String("to", "", "destination account (transfer)")
		fs.Parse(args)
		at, err := parseDate(*date)
		if err != nil {
			return err
		}
		id, err := svc.AddTransaction(ctx, ns, services.TransactionRequest{
			Kind:          core.Kind(*kind),
			Date:          at,
			Amount:        *amount,
			Account:       *account,
			CategoryID:    *category,
			SubcategoryID: *subcategory,
			From:          *from,
			To:            *to,
		})
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil

	case "txn-delete":
		fs := flag.NewFlagSet(command, flag.ExitOnError)
		id := fs.String("id", "", "transaction id")
		fs.Parse(args)
		return svc.DeleteTransaction(ctx, ns, *id)

	case "txns":
		fs := flag.NewFlagSet(command, flag.ExitOnError)
		from := fs.String("from", "", "range start (YYYY-MM-DD, default 30 days ago)")
		to := fs.String("to", "", "range end (YYYY-MM-DD, default today)")
		fs.Parse(args)
		start, end, err := parseRange(*from, *to)
		if err != nil {
			return err
		}
		txns, err := svc.Transactions(ctx, ns, start, end)
		if err != nil {
			return err
		}
		for _, txn := range txns {
			fmt.Printf("%s  %s  %-8s %10s  %v\n",
				txn.ID, txn.Date.Format(dateFormat), txn.Detail.Kind(), txn.Amount.StringFixed(2), txn.Accounts())
		}
		return nil

	case "networth":
		series, err := svc.NetWorth(ctx, ns)
		if err != nil {
			return err
		}
		return printJSON(series)

	case "flows":
		fs := flag.NewFlagSet(command, flag.ExitOnError)
		from := fs.String("from", "", "range start (YYYY-MM-DD, default 30 days ago)")
		to := fs.String("to", "", "range end (YYYY-MM-DD, default today)")
		fs.Parse(args)
		start, end, err := parseRange(*from, *to)
		if err != nil {
			return err
		}
		flows, err := svc.Flows(ctx, ns, start, end)
		if err != nil {
			return err
		}
		return printJSON(flows)

	case "breakdown":
		fs := flag.NewFlagSet(command, flag.ExitOnError)
		month := fs.Int("month", 0, "month 1-12, 0 for the whole year")
		year := fs.Int("year", time.Now().UTC().Year(), "year")
		fs.Parse(args)
		groups, err := svc.Breakdown(ctx, ns, time.Month(*month), *year)
		if err != nil {
			return err
		}
		return printJSON(groups)

	case "summary":
		summary, err := svc.Summary(ctx, ns)
		if err != nil {
			return err
		}
		return printJSON(summary)

	case "years":
		years, err := svc.Years(ctx, ns)
		if err != nil {
			return err
		}
		return printJSON(years)

	case "categories":
		fs := flag.NewFlagSet(command, flag.ExitOnError)
		flow := fs.String("flow", "out", "flow direction: in or out")
		flat := fs.Bool("flat", false, "print flattened subcategory paths")
		fs.Parse(args)
		if *flat {
			cats, err := svc.FlatCategories(ctx, ns, core.Flow(*flow))
			if err != nil {
				return err
			}
			for _, c := range cats {
				fmt.Printf("%4d  %s\n", c.ID, c.Path)
			}
			return nil
		}
		cats, err := svc.Categories(ctx, ns, core.Flow(*flow))
		if err != nil {
			return err
		}
		return printJSON(cats)

	case "-h", "--help", "help":
		usage()
		return nil

	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(dateFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: use YYYY-MM-DD", s)
	}
	return t, nil
}

func parseRange(from, to string) (time.Time, time.Time, error) {
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -30)
	var err error
	if from != "" {
		if start, err = time.Parse(dateFormat, from); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid date %q: use YYYY-MM-DD", from)
		}
	}
	if to != "" {
		if end, err = time.Parse(dateFormat, to); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid date %q: use YYYY-MM-DD", to)
		}
		// Include the whole end day.
		end = end.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return start, end, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
