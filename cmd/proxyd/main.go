// proxyd is the trusted local proxy the browser dashboard talks to. It
// forwards announcement and price requests to the exchange with proper
// browser headers (sidestepping CORS) and exposes order placement through
// the broker session it holds.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/arjunrk/bsewatch/internal/broker"
	"github.com/arjunrk/bsewatch/internal/config"
	"github.com/arjunrk/bsewatch/internal/eod"
	"github.com/arjunrk/bsewatch/internal/feed"
	"github.com/arjunrk/bsewatch/internal/model"
	"github.com/arjunrk/bsewatch/internal/pricing"
	"github.com/arjunrk/bsewatch/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/watcher.local.yaml", "path to config file")
	port := flag.Int("port", 8000, "listen port")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	_ = godotenv.Load()

	logger.Info("starting proxyd", "version", version.Version, "config", *configPath)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// The proxy always goes straight to the origin; it exists so browsers
	// don't have to.
	directCfg := cfg.Feed
	directCfg.ProxyURL = ""
	directCfg.Relays = nil

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The EOD baseline backs the live quote chain when intraday lookups fail.
	baseline := eod.NewBaseline(cfg.EOD, eod.WithLogger(logger))
	if err := baseline.Start(ctx); err != nil {
		logger.Error("failed to start eod baseline", "error", err)
		os.Exit(1)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		baseline.Stop(stopCtx)
	}()

	s := &server{
		logger: logger,
		feed:   feed.NewClient(directCfg, feed.WithLogger(logger)),
		quotes: pricing.NewCache(
			cfg.Pricing.TTL,
			pricing.NewHTTPLookup(cfg.Pricing, cfg.Feed.Timeout, logger),
			pricing.WithCacheLogger(logger),
		),
		baseline: baseline,
		orders:   broker.NewClient(cfg.Broker, broker.WithLogger(logger)),
		broker:   cfg.Broker,
	}

	r := gin.New()
	r.Use(gin.Recovery(), cors())

	r.GET("/health", s.health)
	r.GET("/api/announcements", s.announcements)
	r.GET("/api/stock-price", s.stockPrice)
	r.GET("/api/kite/login", s.kiteLogin)
	r.GET("/kite/callback", s.kiteCallback)
	r.GET("/api/kite/status", s.kiteStatus)
	r.POST("/api/kite/order", s.placeOrder)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", *port),
		Handler: r,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	go func() {
		logger.Info("proxyd listening", "port", *port)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)

	logger.Info("proxyd stopped")
}

type server struct {
	logger   *slog.Logger
	feed     *feed.Client
	quotes   *pricing.Cache
	baseline *eod.Baseline
	orders   *broker.Client
	broker   config.BrokerConfig

	authenticated bool
}

// cors allows the dashboard to be served from anywhere, file:// included.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// announcements fetches today's feed from the origin and returns it in the
// provider's Table envelope.
func (s *server) announcements(c *gin.Context) {
	batch, err := s.feed.Fetch(c.Request.Context())
	if err != nil {
		s.logger.Warn("announcements fetch failed", "err", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"Table": batch.Records})
}

func (s *server) stockPrice(c *gin.Context) {
	scripCode, err := strconv.ParseInt(c.Query("scripcode"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "scripcode must be numeric"})
		return
	}
	symbol := c.Query("symbol")

	quote, err := s.quotes.Price(c.Request.Context(), scripCode, symbol)
	if err != nil {
		s.logger.Debug("quote lookup error", "scrip", scripCode, "err", err)
	}
	if quote != nil && quote.Resolved() {
		c.JSON(http.StatusOK, gin.H{
			"price":  quote.Price,
			"source": quote.Source,
		})
		return
	}

	// Fall back to the last trading day's close.
	if symbol != "" {
		if closing, ok := s.baseline.Close(symbol); ok {
			c.JSON(http.StatusOK, gin.H{
				"price":  closing,
				"source": "eod",
				"as_of":  s.baseline.AsOf().Format("2006-01-02"),
			})
			return
		}
	}

	c.JSON(http.StatusNotFound, gin.H{"error": "price unavailable"})
}

// kiteLogin returns the broker login URL; visiting it redirects back to
// /kite/callback with a request token.
func (s *server) kiteLogin(c *gin.Context) {
	if s.broker.APIKey == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "broker api key not configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"login_url": "https://kite.zerodha.com/connect/login?v=3&api_key=" + s.broker.APIKey,
	})
}

// kiteCallback completes the login by exchanging the request token for a
// session.
func (s *server) kiteCallback(c *gin.Context) {
	requestToken := c.Query("request_token")
	if requestToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing request_token"})
		return
	}

	if _, err := s.orders.GenerateSession(c.Request.Context(), requestToken, s.broker.APISecret); err != nil {
		s.logger.Error("session generation failed", "err", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	s.authenticated = true

	c.JSON(http.StatusOK, gin.H{"status": "authenticated"})
}

func (s *server) kiteStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"configured":    s.broker.APIKey != "",
		"authenticated": s.authenticated || s.broker.AccessToken != "",
	})
}

func (s *server) placeOrder(c *gin.Context) {
	var req model.OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := s.orders.PlaceOrder(c.Request.Context(), req)
	if err != nil {
		s.logger.Error("order placement failed", "symbol", req.Symbol, "err", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "success",
		"order_id": res.OrderID,
	})
}
