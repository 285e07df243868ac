package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-payment-reconciler/internal/app"
	"github.com/imrishuroy/go-payment-reconciler/internal/config"
	"github.com/imrishuroy/go-payment-reconciler/internal/handlers"
	"github.com/imrishuroy/go-payment-reconciler/internal/logging"
	"github.com/imrishuroy/go-payment-reconciler/internal/signature"
	"github.com/imrishuroy/go-payment-reconciler/internal/validation"
)

func setupRouter(cfg handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), handlers.RequestLogger(cfg.Logger))

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterWebhookRoutes(r, cfg)
	handlers.RegisterPendingOrderRoutes(r, cfg)

	return r
}

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to an optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath, config.RoleAPI)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		panic(fmt.Sprintf("failed to create logger: %v", err))
	}
	defer logger.Sync()

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to init services", zap.Error(err))
	}
	defer a.Close()

	verifier, err := signature.NewVerifier(cfg.Webhook.Secret, cfg.Webhook.AllowUnsigned)
	if err != nil {
		logger.Fatal("failed to init signature verifier", zap.Error(err))
	}
	if cfg.Webhook.AllowUnsigned {
		logger.Warn("unsigned webhooks are accepted; never enable this in production")
	}

	dispatcher, drain, err := a.Dispatcher()
	if err != nil {
		logger.Fatal("failed to init dispatcher", zap.Error(err))
	}

	r := setupRouter(handlers.HandlerConfig{
		Verifier:   verifier,
		Dispatcher: dispatcher,
		Pending:    a.Pending,
		Validator:  validation.New(),
		AdminToken: cfg.Admin.Token,
		Logger:     logger,
	})

	// RUN_LOCAL=true runs a plain HTTP server for development.
	if cfg.Server.RunLocal {
		runLocal(r, cfg.Server.Addr, drain, logger)
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}

func runLocal(r *gin.Engine, addr string, drain func(context.Context) error, logger *zap.Logger) {
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("running local server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		logger.Error("local server failed", zap.Error(err))
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
	// accepted webhooks finish before exit
	if err := drain(ctx); err != nil {
		logger.Warn("dispatch drain incomplete", zap.Error(err))
	}
}
