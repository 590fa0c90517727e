package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/yourorg/trading-engine/internal/cache"
	"github.com/yourorg/trading-engine/internal/candle"
	"github.com/yourorg/trading-engine/internal/client"
	"github.com/yourorg/trading-engine/internal/config"
	"github.com/yourorg/trading-engine/internal/handler"
	"github.com/yourorg/trading-engine/internal/kafka"
	"github.com/yourorg/trading-engine/internal/logger"
	"github.com/yourorg/trading-engine/internal/middleware"
	"github.com/yourorg/trading-engine/internal/ratelimit"
	"github.com/yourorg/trading-engine/internal/repository"
	"github.com/yourorg/trading-engine/internal/repository/migrations"
	"github.com/yourorg/trading-engine/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Set up logger
	zlog, err := logger.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zlog.Sync()

	loc, err := cfg.Market.Location()
	if err != nil {
		zlog.Fatal("Failed to load market timezone", zap.Error(err))
	}

	// Connect to database and apply migrations
	db, err := connectToDB(cfg.Database)
	if err != nil {
		zlog.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := migrations.Run(context.Background(), db); err != nil {
		zlog.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Initialize repositories
	candleRepo := repository.NewCandleRepository(db, zlog)
	strategyRepo := repository.NewStrategyRepository(db, zlog)
	orderRepo := repository.NewOrderRepository(db, zlog)
	accountRepo := repository.NewAccountRepository(db, zlog)

	// Initialize caches and the broker client
	tickCache := cache.NewTickCache(loc, zlog)
	quoteCache := cache.NewQuoteCache(loc)
	limits := ratelimit.NewRegistry(cfg.RateLimit.RealPerSecond, cfg.RateLimit.PaperPerSecond, time.Second)
	kisClient := client.NewKISClient(cfg.Broker, zlog)

	// Initialize services
	marketDataService := service.NewMarketDataService(
		tickCache,
		candle.NewAggregator(zlog),
		candleRepo,
		cfg.Market,
		loc,
		zlog,
	)
	accountService := service.NewAccountService(accountRepo, kisClient, limits, zlog)
	planService := service.NewPlanService(strategyRepo, loc, zlog)
	orderService := service.NewOrderService(orderRepo, strategyRepo, accountService, loc, zlog)

	// Initialize handlers
	validate := validator.New()
	tickHandler := handler.NewTickHandler(marketDataService, validate, zlog)
	quoteHandler := handler.NewQuoteHandler(quoteCache, validate, zlog)
	planHandler := handler.NewPlanHandler(planService, validate, zlog)
	orderResultHandler := handler.NewOrderResultHandler(orderService, validate, zlog)
	commandHandler := handler.NewCommandHandler(marketDataService, zlog)
	marketDataHandler := handler.NewMarketDataHandler(marketDataService, quoteCache, zlog)

	// Start one consumer per stream
	brokers := cfg.Kafka.BrokerList()
	consumers := []*kafka.Consumer{
		kafka.NewConsumer(brokers, cfg.Kafka.GroupID, cfg.Kafka.Topics.Price, tickHandler.Handle, zlog),
		kafka.NewConsumer(brokers, cfg.Kafka.GroupID, cfg.Kafka.Topics.AskingPrice, quoteHandler.Handle, zlog),
		kafka.NewConsumer(brokers, cfg.Kafka.GroupID, cfg.Kafka.Topics.DailyStrategy, planHandler.Handle, zlog),
		kafka.NewConsumer(brokers, cfg.Kafka.GroupID, cfg.Kafka.Topics.OrderResult, orderResultHandler.Handle, zlog),
		kafka.NewConsumer(brokers, cfg.Kafka.GroupID, cfg.Kafka.Topics.Commands, commandHandler.Handle, zlog),
	}

	consumerCtx, stopConsumers := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for _, c := range consumers {
		wg.Add(1)
		go func(c *kafka.Consumer) {
			defer wg.Done()
			c.Run(consumerCtx)
		}(c)
	}

	// Set up HTTP server with Gin
	router := setupRouter(marketDataHandler, zlog)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start the server in a goroutine
	go func() {
		zlog.Info("Starting server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("Shutting down...")

	// Stop the consumers first so no new messages arrive while flushing
	stopConsumers()
	for _, c := range consumers {
		if err := c.Close(); err != nil {
			zlog.Error("Failed to close consumer", zap.Error(err))
		}
	}
	wg.Wait()

	// Persist whatever the tick cache still holds
	flushCtx, cancelFlush := context.WithTimeout(context.Background(), 30*time.Second)
	marketDataService.Flush(flushCtx)
	marketDataService.Close()
	cancelFlush()

	// Create a deadline for server shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zlog.Fatal("Server forced to shutdown", zap.Error(err))
	}

	zlog.Info("Server exited properly")
}

func connectToDB(dbConfig config.DatabaseConfig) (*sqlx.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		dbConfig.Host,
		dbConfig.Port,
		dbConfig.User,
		dbConfig.Password,
		dbConfig.DBName,
		dbConfig.SSLMode,
	)

	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(dbConfig.MaxOpenConns)
	db.SetMaxIdleConns(dbConfig.MaxIdleConns)
	db.SetConnMaxLifetime(dbConfig.ConnMaxLifetime)

	return db, nil
}

func setupRouter(marketDataHandler *handler.MarketDataHandler, zlog *zap.Logger) *gin.Engine {
	router := gin.New()

	// Use middlewares
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(zlog))

	// Health check and metrics
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API routes
	v1 := router.Group("/api/v1")
	{
		v1.GET("/candles/today", marketDataHandler.GetTodayCandles)
		v1.GET("/quotes/:stock_code", marketDataHandler.GetQuote)
	}
	return router
}
