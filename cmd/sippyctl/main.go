// Command sippyctl runs one operation against a Sippy softswitch:
// dashboard queries, payment and balance operations, or live call control.
//
// Usage:
//
//	sippyctl <command> [flags] [args]
//
// Commands:
//
//	account-info                  print the raw account info XML
//	call-stats                    print the raw call statistics XML
//	cdrs [offset limit]           list CDR widget records
//	payment <id>                  show one payment
//	payments                      list payments for the account
//	add-funds <amount> <currency> [notes]
//	add-credit <amount> <currency> [notes]
//	debit <amount> <currency> [notes]
//	calls                         list active calls
//	disconnect <call-id>          disconnect one call
//	disconnect-all                disconnect every call on the account
//
// Connection flags (-host, -username, -password, -account, ...) follow the
// command; see internal/config for the full set and SIPPYCTL_* env vars.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"golang.org/x/time/rate"

	"github.com/flowpbx/sippyctl/internal/config"
	"github.com/flowpbx/sippyctl/internal/sippy"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: sippyctl <command> [flags] [args]")
		os.Exit(2)
	}
	command := os.Args[1]

	cfg, err := config.Load(os.Args[2:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(cfg.LogHandler(os.Stderr))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, command, cfg); err != nil {
		slog.Error("command failed", "command", command, "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, cfg *config.Config) error {
	creds := sippy.Credentials{
		Username: cfg.Username,
		Password: cfg.Password,
		Host:     cfg.Host,
	}

	var opts []sippy.Option
	if cfg.InsecureTLS {
		opts = append(opts, sippy.WithInsecureTLS())
	}
	if cfg.RateLimit > 0 {
		opts = append(opts, sippy.WithRateLimit(rate.Limit(cfg.RateLimit), cfg.RateBurst))
	}

	switch command {
	case "account-info", "call-stats", "cdrs":
		return runDashboard(ctx, command, creds, cfg, opts)
	case "payment", "payments", "add-funds", "add-credit", "debit":
		return runPayments(ctx, command, creds, cfg, opts)
	case "calls", "disconnect", "disconnect-all":
		return runCalls(ctx, command, creds, cfg, opts)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func runDashboard(ctx context.Context, command string, creds sippy.Credentials, cfg *config.Config, opts []sippy.Option) error {
	client, err := sippy.NewDashboardClient(creds, append(opts, sippy.WithTimeout(cfg.DashboardTimeout))...)
	if err != nil {
		return err
	}

	switch command {
	case "account-info":
		raw, err := client.AccountInfo(ctx, cfg.AccountID)
		if err != nil {
			return err
		}
		os.Stdout.Write(raw)
	case "call-stats":
		raw, err := client.CallStats(ctx, cfg.AccountID)
		if err != nil {
			return err
		}
		os.Stdout.Write(raw)
	case "cdrs":
		offset, limit := 0, 100
		if len(cfg.Args) > 0 {
			if offset, err = strconv.Atoi(cfg.Args[0]); err != nil {
				return fmt.Errorf("bad offset %q", cfg.Args[0])
			}
		}
		if len(cfg.Args) > 1 {
			if limit, err = strconv.Atoi(cfg.Args[1]); err != nil {
				return fmt.Errorf("bad limit %q", cfg.Args[1])
			}
		}
		records, err := client.AccountCDRs(ctx, cfg.AccountID, offset, limit)
		if err != nil {
			return err
		}
		return printJSON(records)
	}
	return nil
}

func runPayments(ctx context.Context, command string, creds sippy.Credentials, cfg *config.Config, opts []sippy.Option) error {
	client, err := sippy.NewPaymentsClient(creds, append(opts, sippy.WithTimeout(cfg.APITimeout))...)
	if err != nil {
		return err
	}

	switch command {
	case "payment":
		if len(cfg.Args) < 1 {
			return fmt.Errorf("usage: sippyctl payment <id>")
		}
		id, err := strconv.Atoi(cfg.Args[0])
		if err != nil {
			return fmt.Errorf("bad payment id %q", cfg.Args[0])
		}
		p, err := client.PaymentInfo(ctx, id)
		if err != nil {
			return err
		}
		return printJSON(p)
	case "payments":
		list, err := client.Payments(ctx, sippy.PaymentFilter{AccountID: cfg.AccountID})
		if err != nil {
			return err
		}
		return printJSON(list)
	case "add-funds", "add-credit", "debit":
		amount, currency, notes, err := balanceArgs(cfg.Args)
		if err != nil {
			return err
		}
		var result any
		switch command {
		case "add-funds":
			result, err = client.AddFunds(ctx, cfg.AccountID, amount, currency, notes)
		case "add-credit":
			result, err = client.AddCredit(ctx, cfg.AccountID, amount, currency, notes)
		case "debit":
			result, err = client.Debit(ctx, cfg.AccountID, amount, currency, notes)
		}
		if err != nil {
			return err
		}
		return printJSON(result)
	}
	return nil
}

func runCalls(ctx context.Context, command string, creds sippy.Credentials, cfg *config.Config, opts []sippy.Option) error {
	client, err := sippy.NewCallsClient(creds, append(opts, sippy.WithTimeout(cfg.APITimeout))...)
	if err != nil {
		return err
	}

	switch command {
	case "calls":
		calls, err := client.ActiveCalls(ctx, cfg.AccountID)
		if err != nil {
			return err
		}
		return printJSON(calls)
	case "disconnect":
		if len(cfg.Args) < 1 {
			return fmt.Errorf("usage: sippyctl disconnect <call-id>")
		}
		if err := client.DisconnectCall(ctx, cfg.Args[0]); err != nil {
			return err
		}
		fmt.Println("disconnected", cfg.Args[0])
	case "disconnect-all":
		if err := client.DisconnectAccountCalls(ctx, cfg.AccountID); err != nil {
			return err
		}
		fmt.Println("disconnected all calls for account", cfg.AccountID)
	}
	return nil
}

func balanceArgs(args []string) (amount float64, currency, notes string, err error) {
	if len(args) < 2 {
		return 0, "", "", fmt.Errorf("usage: sippyctl <add-funds|add-credit|debit> <amount> <currency> [notes]")
	}
	amount, err = strconv.ParseFloat(args[0], 64)
	if err != nil {
		return 0, "", "", fmt.Errorf("bad amount %q", args[0])
	}
	currency = args[1]
	if len(args) > 2 {
		notes = args[2]
	}
	return amount, currency, notes, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
