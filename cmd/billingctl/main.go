package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/edvin/metering/internal/billingctl"
	"github.com/edvin/metering/internal/blob"
	"github.com/edvin/metering/internal/config"
	"github.com/edvin/metering/internal/core"
	"github.com/edvin/metering/internal/db"
	"github.com/edvin/metering/internal/logging"
	"github.com/edvin/metering/internal/model"
	"github.com/edvin/metering/internal/render"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd, args := os.Args[1], os.Args[2:]
	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		printUsage()
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate("billingctl"); err != nil {
		fatalf("invalid config: %v", err)
	}
	logger := logging.NewLogger(cfg)

	if cmd == "migrate" {
		if err := db.RunMigrations(cfg.DatabaseURL); err != nil {
			fatalf("migration failed: %v", err)
		}
		fmt.Println("Migrations applied.")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svcs, closeFn, err := connect(ctx, cfg, logger)
	if err != nil {
		fatalf("%v", err)
	}
	defer closeFn()

	switch cmd {
	case "seed":
		err = seed(ctx, svcs, args)
	case "create-tenant":
		err = createTenant(ctx, svcs, args)
	case "create-api-key":
		err = createAPIKey(ctx, svcs, args)
	case "aggregate":
		err = aggregate(ctx, svcs, cfg, args)
	case "invoice":
		err = invoice(ctx, svcs, args)
	case "invoice-all":
		err = invoiceAll(ctx, svcs, logger, args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		closeFn()
		fatalf("%v", err)
	}
}

func connect(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*core.Services, func(), error) {
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}

	blobs, err := blob.New(ctx, cfg, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("configure invoice storage: %w", err)
	}

	renderer, err := render.New(cfg)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("configure invoice renderer: %w", err)
	}

	closeFn := func() {
		if c, ok := renderer.(interface{ Close() }); ok {
			c.Close()
		}
		pool.Close()
	}
	return core.NewServices(pool, blobs, renderer, core.Options{Currency: cfg.InvoiceCurrency}, logger), closeFn, nil
}

func seed(ctx context.Context, svcs *core.Services, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	file := fs.String("f", "", "Path to seed definition YAML file (required)")
	fs.Parse(args)

	path := *file
	if path == "" && fs.NArg() > 0 {
		path = fs.Arg(0)
	}
	if path == "" {
		return errors.New("usage: billingctl seed -f <seed.yaml>")
	}

	seedCfg, err := billingctl.LoadSeed(path)
	if err != nil {
		return err
	}
	return billingctl.NewSeeder(svcs, os.Stdout).Seed(ctx, seedCfg)
}

func createTenant(ctx context.Context, svcs *core.Services, args []string) error {
	fs := flag.NewFlagSet("create-tenant", flag.ExitOnError)
	id := fs.String("id", "", "Tenant ID (generated when empty)")
	name := fs.String("name", "", "Tenant name (required)")
	active := fs.Bool("active", false, "Mark the subscription active")
	fs.Parse(args)

	if *name == "" {
		return errors.New("usage: billingctl create-tenant --name <name> [--id <id>] [--active]")
	}

	t, err := svcs.Tenant.Create(ctx, *id, *name)
	if err != nil {
		return fmt.Errorf("create tenant: %w", err)
	}
	if *active {
		if err := svcs.Tenant.ApplyPayment(ctx, t.ID, core.SubscriptionUpdate{Status: model.SubscriptionActive}); err != nil {
			return fmt.Errorf("activate tenant: %w", err)
		}
	}

	fmt.Printf("Tenant created.\n\n")
	fmt.Printf("  ID:   %s\n", t.ID)
	fmt.Printf("  Name: %s\n", t.Name)
	return nil
}

func createAPIKey(ctx context.Context, svcs *core.Services, args []string) error {
	fs := flag.NewFlagSet("create-api-key", flag.ExitOnError)
	tenant := fs.String("tenant", "", "Tenant ID (required)")
	name := fs.String("name", "", "Name for the API key (required)")
	fs.Parse(args)

	if *tenant == "" || *name == "" {
		return errors.New("usage: billingctl create-api-key --tenant <id> --name <name>")
	}

	key, rawKey, err := svcs.APIKey.Create(ctx, *tenant, *name)
	if err != nil {
		return fmt.Errorf("create API key: %w", err)
	}

	fmt.Printf("API key created successfully.\n\n")
	fmt.Printf("  Tenant: %s\n", key.TenantID)
	fmt.Printf("  Name:   %s\n", key.Name)
	fmt.Printf("  ID:     %s\n", key.ID)
	fmt.Printf("  Key:    %s\n\n", rawKey)
	fmt.Printf("Save this key, it will not be shown again.\n")
	return nil
}

func aggregate(ctx context.Context, svcs *core.Services, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("aggregate", flag.ExitOnError)
	batchSize := fs.Int("batch-size", cfg.AggregationBatchSize, "Events claimed per batch")
	maxBatches := fs.Int("max-batches", cfg.AggregationMaxBatches, "Maximum batches in this run")
	fs.Parse(args)

	res, err := svcs.Aggregator.Drain(ctx, *batchSize, *maxBatches)
	if err != nil {
		return fmt.Errorf("aggregate usage: %w", err)
	}
	fmt.Printf("Batches: %d  Claimed: %d  Counted: %d  Unmatched: %d  Groups: %d\n",
		res.Batches, res.Claimed, res.Counted, res.Unmatched, res.Groups)
	return nil
}

func invoice(ctx context.Context, svcs *core.Services, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: billingctl invoice <tenant-id> <customer-id>")
	}

	inv, err := svcs.Generator.Generate(ctx, args[0], args[1])
	if errors.Is(err, core.ErrNoContent) {
		fmt.Println("Nothing to bill.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("generate invoice: %w", err)
	}

	fmt.Printf("Invoice created.\n\n")
	fmt.Printf("  ID:       %s\n", inv.ID)
	fmt.Printf("  Lines:    %d\n", len(inv.LineItems))
	fmt.Printf("  Total:    %s\n", render.FormatCents(inv.TotalCents, inv.Currency))
	fmt.Printf("  Document: %s\n", inv.FilePath)
	return nil
}

func invoiceAll(ctx context.Context, svcs *core.Services, logger zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("invoice-all", flag.ExitOnError)
	concurrency := fs.Int("concurrency", 4, "Invoices generated in parallel")
	fs.Parse(args)

	res, err := billingctl.InvoiceAll(ctx, svcs.Generator, *concurrency, logger)
	if err != nil {
		return err
	}
	fmt.Printf("Customers: %d  Invoiced: %d  Skipped: %d  Failed: %d\n",
		res.Customers, res.Invoiced, res.Skipped, res.Failed)
	if res.Failed > 0 {
		return fmt.Errorf("%d invoice(s) failed", res.Failed)
	}
	return nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage:
  billingctl migrate
  billingctl seed -f <seed.yaml>
  billingctl create-tenant --name <name> [--id <id>] [--active]
  billingctl create-api-key --tenant <id> --name <name>
  billingctl aggregate [--batch-size N] [--max-batches N]
  billingctl invoice <tenant-id> <customer-id>
  billingctl invoice-all [--concurrency N]`)
}
