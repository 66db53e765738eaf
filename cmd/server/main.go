package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dashboard/internal/api"
	"dashboard/internal/config"
	"dashboard/internal/engine"
	"dashboard/internal/logger"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

var (
	cfgFile string

	flagData   string
	flagListen string
	flagLevel  string
	flagFormat string

	cfg *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Serve the child-stunting prevalence dashboard API",
	Long: `Loads the stunting prevalence table once and serves filtered views,
KPIs, grouped means, rankings, charts and exports over HTTP.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		c, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		f := cmd.Flags()
		if f.Changed("data") {
			c.DataPath = flagData
		}
		if f.Changed("listen") {
			c.ListenAddr = flagListen
		}
		if f.Changed("log-level") {
			c.LogLevel = flagLevel
		}
		if f.Changed("log-format") {
			c.LogFormat = flagFormat
		}
		cfg = c
		return logger.Setup(c.LogFormat, c.LogLevel)
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		return serve(cmd.Context())
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is ./dashboard.yaml)")
	pf.StringVar(&flagData, "data", "", "path to the stunting CSV (overrides config)")
	pf.StringVar(&flagLevel, "log-level", "", "debug, info, warn or error (overrides config)")
	pf.StringVar(&flagFormat, "log-format", "", "json or text (overrides config)")
	rootCmd.Flags().StringVar(&flagListen, "listen", "", "listen address (overrides config)")

	rootCmd.AddCommand(exportCmd, configCmd)
}

func newEcho(c *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.JSONSerializer = api.JSONSerializer{}
	e.Logger.SetLevel(log.INFO)

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{AllowOrigins: c.CORSOrigins}))
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())
	if c.RateLimit > 0 {
		store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(c.RateLimit),
			Burst:     c.RateBurst,
			ExpiresIn: 3 * time.Minute,
		})
		e.Use(middleware.RateLimiter(store))
	}
	return e
}

func serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Initialize Echo (starts instantly)
	e := newEcho(cfg)

	// 2. Handler starts without data; data endpoints answer 503 until loaded
	h := api.NewHandler(nil)
	h.SetDefaultBins(cfg.DefaultBins)
	h.RegisterRoutes(e)

	// 3. Load the dataset in the background
	loadErr := make(chan error, 1)
	go func() {
		logger.Info("loading dataset", "path", cfg.DataPath)
		store, err := engine.Load(cfg.DataPath)
		if err != nil {
			loadErr <- err
			stop()
			return
		}
		h.SetData(store)
		logger.Info("dataset ready, api fully available")
	}()

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeout)*time.Second)
		defer cancel()
		if err := e.Shutdown(sctx); err != nil {
			logger.Error("shutdown", "error", err)
		}
	}()

	// 4. Start server
	logger.Info("server listening", "addr", cfg.ListenAddr)
	if err := e.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	select {
	case err := <-loadErr:
		return fmt.Errorf("load dataset: %w", err)
	default:
		return nil
	}
}
