package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"traffic-finance-api/internal/config"
	"traffic-finance-api/internal/crypto"
	"traffic-finance-api/internal/handler"
	"traffic-finance-api/internal/repository"
	"traffic-finance-api/internal/service"
)

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := sql.Open("postgres", fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName,
	))
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}

	// PGP protects withdrawal account details at rest.
	pgpManager, err := crypto.NewPGPManager("config/pgp-key.asc")
	if err != nil {
		logger.Fatalf("Failed to initialize PGP: %v", err)
	}

	pgpKey := pgpManager.GetEntity()
	hmacKey := []byte(os.Getenv("HMAC_SECRET"))
	if len(hmacKey) == 0 {
		logger.Fatal("HMAC_SECRET environment variable is not set")
	}
	if len(hmacKey) < 32 {
		logger.Fatal("HMAC key must be at least 32 bytes")
	}

	logger.Info("Initializing repositories...")
	userRepo := repository.NewUserRepository(db, logger)
	ledgerRepo := repository.NewLedgerRepository(db, logger)
	withdrawalRepo := repository.NewWithdrawalRepository(db, logger)
	debtRepo := repository.NewDebtRepository(db, logger)
	fineRepo := repository.NewFineRepository(db, logger)
	emailSender := service.NewEmailSender(logger)

	logger.Info("Initializing services...")
	authService := service.NewAuthService(userRepo, cfg.JWTSecret, cfg.TokenExpiry, logger)
	ledgerService := service.NewLedgerService(ledgerRepo, debtRepo, logger)
	withdrawalService := service.NewWithdrawalService(withdrawalRepo, userRepo, emailSender, pgpKey, hmacKey, logger)
	gatewayClient := service.NewPaymentGatewayClient(cfg.GatewayURL, cfg.GatewayStoreID, cfg.GatewaySecret, logger)
	debtService := service.NewDebtService(debtRepo, fineRepo, userRepo, gatewayClient, emailSender, logger)
	fineService := service.NewFineService(fineRepo, ledgerRepo, userRepo, emailSender, logger)
	analyticService := service.NewAnalyticService(ledgerRepo, debtRepo, logger)

	logger.Info("Initializing API handlers...")
	authHandler := handler.NewAuthHandler(authService, logger)
	rewardHandler := handler.NewRewardHandler(ledgerService, withdrawalService, logger)
	debtHandler := handler.NewDebtHandler(debtService, logger)
	fineHandler := handler.NewFineHandler(fineService, logger)
	analyticHandler := handler.NewAnalyticHandler(analyticService, logger)

	router := mux.NewRouter()

	publicRouter := router.PathPrefix("/auth").Subrouter()
	authHandler.RegisterRoutes(publicRouter)

	apiRouter := router.PathPrefix("/api").Subrouter()
	apiRouter.Use(handler.AuthMiddleware(authService, logger))

	rewardRouter := apiRouter.PathPrefix("/rewards").Subrouter()
	rewardHandler.RegisterRoutes(rewardRouter)

	debtRouter := apiRouter.PathPrefix("/debts").Subrouter()
	debtHandler.RegisterRoutes(debtRouter)

	fineRouter := apiRouter.PathPrefix("/fines").Subrouter()
	fineHandler.RegisterRoutes(fineRouter)

	analyticRouter := apiRouter.PathPrefix("/analytics").Subrouter()
	analyticHandler.RegisterRoutes(analyticRouter)

	// Overdue unpaid fines become outstanding debts on a schedule.
	logger.Info("Scheduling overdue fine processing...")
	c := cron.New()
	_, err = c.AddFunc("0 */6 * * *", func() {
		logger.Info("Running overdue fine sweep")
		if err := debtService.ProcessOverdueFines(context.Background()); err != nil {
			logger.WithError(err).Error("Overdue fine sweep failed")
		} else {
			logger.Info("Overdue fine sweep completed")
		}
	})
	if err != nil {
		logger.Fatalf("Failed to schedule overdue fine processing: %v", err)
	}
	c.Start()

	server := &http.Server{
		Addr:    cfg.ServerAddress,
		Handler: router,
	}

	go func() {
		logger.Infof("Starting server on %s", cfg.ServerAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	if err := server.Shutdown(context.Background()); err != nil {
		logger.Errorf("Server shutdown error: %v", err)
	}
	logger.Info("Server stopped")
}
