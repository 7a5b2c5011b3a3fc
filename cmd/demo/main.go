package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"rowgraph/internal/config"
	"rowgraph/internal/export"
	"rowgraph/internal/instrument"
	"rowgraph/internal/keyvault"
	"rowgraph/internal/metadata"
	"rowgraph/internal/persistence"
	"rowgraph/internal/query"
	"rowgraph/internal/sample"
	"rowgraph/internal/store"
)

func main() {
	ctx := context.Background()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Logger
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)
	logger.Info("config loaded", "driver", cfg.Database.Driver, "vault", cfg.KeyVault.Backend)

	// 3. Metrics
	var inst instrument.Instrumenter = &instrument.NoopInstrumenter{}
	promReg := prometheus.NewRegistry()
	if cfg.Metrics.Enabled {
		m, err := instrument.NewMetrics(promReg)
		if err != nil {
			log.Fatalf("Failed to register metrics: %v", err)
		}
		inst = m
	}

	// 4. Connect to database
	if cfg.Database.IsSQLite() && cfg.Database.Path != ":memory:" {
		if err := os.MkdirAll(cfg.Database.Path, 0o755); err != nil {
			log.Fatalf("Failed to create data directory: %v", err)
		}
	}
	db, err := store.Open(ctx, cfg.Database, store.WithLogger(logger), store.WithInstrumenter(inst))
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// 5. Register entity types
	reg := metadata.NewRegistry(
		metadata.WithNaming(metadata.ParseNaming(cfg.Mapping.Naming)),
		metadata.WithActiveColumn(cfg.Mapping.ActiveColumn),
	)
	if err := reg.Register(sample.All()...); err != nil {
		log.Fatalf("Failed to register entity types: %v", err)
	}

	// 6. Create tables
	if err := store.NewMigrator(db, reg).MigrateAll(ctx); err != nil {
		log.Fatalf("Failed to migrate: %v", err)
	}
	logger.Info("tables ready", "types", len(reg.All()))

	// 7. Key vault
	vault, err := keyvault.Open(ctx, cfg.KeyVault, keyvault.WithLogger(logger), keyvault.WithInstrumenter(inst))
	if err != nil {
		log.Fatalf("Failed to open key vault: %v", err)
	}
	if err := vault.Load(ctx); err != nil {
		log.Fatalf("Failed to load key vault: %v", err)
	}
	defer func() {
		if err := vault.Close(ctx); err != nil {
			logger.Error("key vault flush failed", "error", err)
		}
	}()

	// 8. Persistence service
	svc := persistence.New(db, reg,
		persistence.WithVault(vault),
		persistence.WithLogger(logger),
		persistence.WithInstrumenter(inst),
		persistence.WithLikeMarker(cfg.Mapping.LikeMarker),
		persistence.WithRenderMode(query.ParseMode(cfg.Mapping.Render)),
	)

	// 9. Run the invoicing scenario
	if err := runScenario(ctx, svc, logger); err != nil {
		var perr *persistence.Error
		if errors.As(err, &perr) {
			logger.Error("scenario failed", "code", perr.Code, "entity", perr.Entity, "details", perr.Details)
		}
		log.Fatalf("Scenario failed: %v", err)
	}

	// 10. Export invoices
	if cfg.Export.Path != "" {
		if err := exportInvoices(ctx, svc, cfg.Export.Path); err != nil {
			log.Fatalf("Failed to export: %v", err)
		}
		logger.Info("invoices exported", "path", cfg.Export.Path)
	}

	// 11. Serve metrics until interrupted
	if addr := os.Getenv("ROWGRAPH_METRICS_ADDR"); addr != "" && cfg.Metrics.Enabled {
		logger.Info("serving metrics", "addr", addr)
		srv := &http.Server{
			Addr:              addr,
			Handler:           promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func runScenario(ctx context.Context, svc *persistence.Service, logger *slog.Logger) error {
	kind := sample.NewCustomerType()
	kind.SetName("Retail")

	customer := sample.NewCustomer()
	customer.SetName("Acme Corp")
	customer.SetEmail("billing@acme.test")
	customer.CustomerType().Set(kind)
	if err := svc.PersistEntity(ctx, kind); err != nil {
		return err
	}
	if err := svc.PersistEntity(ctx, customer); err != nil {
		return err
	}

	invoice := sample.NewInvoice()
	invoice.SetNumber("INV-" + time.Now().Format("20060102-150405"))
	invoice.SetIssuedAt(time.Now())
	invoice.Customer().Set(customer)

	prices := []string{"19.90", "5.25"}
	total := decimal.Zero
	for i, p := range prices {
		line := sample.NewLine()
		line.SetDescription([]string{"Widget", "Gadget"}[i])
		line.SetQuantity(int64(i + 1))
		line.SetPrice(decimal.RequireFromString(p))
		total = total.Add(line.Price().Mul(decimal.NewFromInt(line.Quantity())))
		if err := invoice.Lines().Add(ctx, line); err != nil {
			return err
		}
	}
	invoice.SetAmount(total.InexactFloat64())
	if err := svc.PersistEntity(ctx, invoice); err != nil {
		return err
	}
	logger.Info("invoice saved", "id", invoice.ID(), "number", invoice.Number(), "amount", invoice.Amount())

	loaded, err := persistence.Get[*sample.Invoice](ctx, svc, invoice.ID())
	if err != nil {
		return err
	}
	lines, err := loaded.Lines().Items(ctx)
	if err != nil {
		return err
	}
	if len(lines) > 0 {
		gone := lines[len(lines)-1]
		if err := loaded.Lines().Remove(ctx, gone); err != nil {
			return err
		}
		loaded.SetAmount(total.Sub(gone.Price().Mul(decimal.NewFromInt(gone.Quantity()))).InexactFloat64())
	}
	if err := svc.PersistEntity(ctx, loaded); err != nil {
		return err
	}

	n, err := loaded.Lines().Len(ctx)
	if err != nil {
		return err
	}
	logger.Info("invoice updated", "id", loaded.ID(), "lines", n, "amount", loaded.Amount())
	return nil
}

func exportInvoices(ctx context.Context, svc *persistence.Service, path string) error {
	table, err := svc.GetEntitiesTabular(ctx, sample.NewInvoice())
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export.WriteXLSX(f, table, "Invoices"); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
