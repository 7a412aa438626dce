package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/text/language"

	"github.com/MrJamesThe3rd/cryptofund/internal/config"
	"github.com/MrJamesThe3rd/cryptofund/internal/database"
	"github.com/MrJamesThe3rd/cryptofund/internal/export"
	cfHttp "github.com/MrJamesThe3rd/cryptofund/internal/http"
	exportHandler "github.com/MrJamesThe3rd/cryptofund/internal/http/export"
	invoiceHandler "github.com/MrJamesThe3rd/cryptofund/internal/http/invoice"
	ratesHandler "github.com/MrJamesThe3rd/cryptofund/internal/http/rates"
	"github.com/MrJamesThe3rd/cryptofund/internal/invoice"
	"github.com/MrJamesThe3rd/cryptofund/internal/invoice/memstore"
	invoiceStore "github.com/MrJamesThe3rd/cryptofund/internal/invoice/store"
	"github.com/MrJamesThe3rd/cryptofund/internal/ledger/evm"
	"github.com/MrJamesThe3rd/cryptofund/internal/ledger/explorers"
	"github.com/MrJamesThe3rd/cryptofund/internal/logging"
	"github.com/MrJamesThe3rd/cryptofund/internal/payment"
	"github.com/MrJamesThe3rd/cryptofund/internal/rates"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Error("failed to load .env", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := logging.Setup(os.Stderr, cfg.Log.Level, cfg.Log.Format); err != nil {
		slog.Error("failed to set up logging", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := openRepository(ctx, cfg)
	if err != nil {
		slog.Error("failed to open invoice store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer closeRepo()

	verifiers, err := explorers.NewRegistry(cfg)
	if err != nil {
		slog.Error("failed to build verifiers", "error", err)
		os.Exit(1)
	}

	locale, err := language.Parse(cfg.Invoice.Locale)
	if err != nil {
		slog.Error("failed to parse INVOICE_LOCALE", "error", err)
		os.Exit(1)
	}

	oracle := rates.NewCoinGecko(cfg.Rates.OracleURL, cfg.Invoice.FiatCurrency, cfg.Rates.Timeout, rates.BreakerSettings{
		Failures: cfg.Rates.BreakerFailures,
		Cooldown: cfg.Rates.BreakerCooldown,
	})

	rateCache := rates.NewCache(oracle, rates.Options{
		RefreshInterval: cfg.Rates.RefreshInterval,
		MaxStaleness:    cfg.Rates.MaxStaleness,
	})
	warmRates(ctx, rateCache)

	var (
		invoiceService = invoice.NewService(repo, rateCache, invoice.Options{
			FiatCurrency: cfg.Invoice.FiatCurrency,
			Converter:    rates.NewConverter(cfg.Invoice.FiatExponent),
			DueDays:      cfg.Invoice.DueDays,
			Tokens:       paymentTokens(cfg),
		})
		paymentService = payment.NewService(invoiceService, verifiers)
		exportService  = export.NewService(invoiceService, cfg.Invoice.FiatExponent, locale)
	)

	var (
		invoiceH = invoiceHandler.NewHandler(invoiceService, paymentService)
		ratesH   = ratesHandler.NewHandler(rateCache, cfg.Invoice.FiatCurrency)
		exportH  = exportHandler.NewHandler(exportService)
	)

	router := cfHttp.New(cfHttp.Options{
		JWTSecret:      cfg.Auth.JWTSecret,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		StoreDriver:    cfg.Store.Driver,
	}, invoiceH, ratesH, exportH)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  2 * cfg.Server.Timeout,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.Timeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("graceful shutdown failed", "error", err)
		}
	}()

	slog.Info("starting server", "addr", srv.Addr, "store", cfg.Store.Driver, "fiat", cfg.Invoice.FiatCurrency)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func paymentTokens(cfg *config.Config) map[string]invoice.Token {
	usdc := evm.USDC(cfg.Explorer.USDCContract)

	return map[string]invoice.Token{
		usdc.Symbol: {Contract: usdc.Contract, Decimals: usdc.Decimals},
	}
}

// warmRates fills the cache once at startup. A failed fetch leaves the
// fallback prices in place.
func warmRates(ctx context.Context, cache *rates.Cache) {
	snap := cache.Refresh(ctx)
	if snap.Stale {
		slog.Warn("initial rate refresh failed, serving fallback prices")
		return
	}

	slog.Info("rates loaded", "count", len(snap.Rates), "refreshed_at", snap.RefreshedAt)
}

func openRepository(ctx context.Context, cfg *config.Config) (invoice.Repository, func(), error) {
	if cfg.Store.Driver == "memory" {
		slog.Warn("using in-memory invoice store, data is lost on restart")
		return memstore.New(), func() {}, nil
	}

	db, err := database.New(ctx, cfg.ConnectionString())
	if err != nil {
		return nil, nil, err
	}

	closeDB := func() {
		if err := db.Close(); err != nil {
			slog.Error("failed to close database", "error", err)
		}
	}

	if err := database.Migrate(cfg.ConnectionString()); err != nil {
		closeDB()
		return nil, nil, err
	}

	return invoiceStore.New(db), closeDB, nil
}
