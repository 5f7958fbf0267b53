package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/veloxcart/veloxcart/internal/config"
	"github.com/veloxcart/veloxcart/internal/email"
	"github.com/veloxcart/veloxcart/internal/handlers"
	"github.com/veloxcart/veloxcart/internal/middleware"
	"github.com/veloxcart/veloxcart/internal/repository"
	"github.com/veloxcart/veloxcart/internal/service"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	if err := godotenv.Load(); err != nil {
		logger.WithError(err).Debug("No .env file loaded")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	dynamoClient, err := initDynamoDB(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize DynamoDB")
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Endpoint,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	sender := initSender(cfg, logger)

	// Repositories
	accountRepo := repository.NewAccountRepository(dynamoClient, cfg.DynamoDB.TableName, logger)
	paymentRepo := repository.NewPaymentRepository(dynamoClient, cfg.DynamoDB.TableName, logger)

	// Services
	tokenService, err := service.NewTokenService(&cfg.JWT, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize token service")
	}

	throttle := service.NewRedisOTPThrottle(redisClient, cfg.OTP.ThrottleWindow, cfg.OTP.MaxSends, cfg.OTP.MaxAttempts)
	authService := service.NewAuthService(accountRepo, sender, tokenService, throttle, &cfg.OTP, logger)
	paymentService := service.NewPaymentService(paymentRepo, accountRepo, sender, &cfg.OTP, logger)

	authHandlers := handlers.NewAuthHandlers(authService, logger)
	paymentHandlers := handlers.NewPaymentHandlers(paymentService, logger)
	authMiddleware := middleware.NewAuthMiddleware(tokenService, logger)

	router := setupRouter(authHandlers, paymentHandlers, authMiddleware, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}

func initDynamoDB(cfg *config.Config, logger *logrus.Logger) (*dynamodb.Client, error) {
	var awsCfg aws.Config
	var err error

	if cfg.DynamoDB.Endpoint != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.TODO(),
			awsconfig.WithRegion(cfg.DynamoDB.Region),
			awsconfig.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(
				func(service, region string, options ...interface{}) (aws.Endpoint, error) {
					return aws.Endpoint{
						URL:           cfg.DynamoDB.Endpoint,
						SigningRegion: cfg.DynamoDB.Region,
					}, nil
				})),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.TODO())
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg)
	logger.Info("DynamoDB client initialized")
	return client, nil
}

func initSender(cfg *config.Config, logger *logrus.Logger) email.Sender {
	if cfg.SMTP.Host == "" {
		logger.Warn("SMTP_HOST not set, OTP emails will fail at dispatch")
		return email.NewDisabledSender("smtp is not configured")
	}

	sender, err := email.NewSMTPSender(
		cfg.SMTP.Host,
		cfg.SMTP.Port,
		cfg.SMTP.Username,
		cfg.SMTP.Password,
		cfg.SMTP.From,
		cfg.SMTP.SendTimeout,
		logger,
	)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize SMTP sender")
	}
	return sender
}

func setupRouter(
	authHandlers *handlers.AuthHandlers,
	paymentHandlers *handlers.PaymentHandlers,
	authMiddleware *middleware.AuthMiddleware,
	logger *logrus.Logger,
) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.CORSMiddleware)
	router.Use(middleware.LoggingMiddleware(logger))

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET", "OPTIONS")

	router.HandleFunc("/register", authHandlers.Register).Methods("POST", "OPTIONS")
	router.HandleFunc("/login", authHandlers.Login).Methods("POST", "OPTIONS")
	router.HandleFunc("/verify-otp", authHandlers.VerifyOTP).Methods("POST", "OPTIONS")
	router.HandleFunc("/send-otp", authHandlers.SendOTP).Methods("POST", "OPTIONS")
	router.HandleFunc("/admin/login", authHandlers.AdminLogin).Methods("POST", "OPTIONS")

	router.HandleFunc("/send-payment-otp", paymentHandlers.SendPaymentOTP).Methods("POST", "OPTIONS")
	router.HandleFunc("/verify-payment-otp", paymentHandlers.VerifyPaymentOTP).Methods("POST", "OPTIONS")

	protected := router.PathPrefix("/").Subrouter()
	protected.Use(authMiddleware.RequireAuth)
	protected.HandleFunc("/me", authHandlers.Me).Methods("GET")
	protected.HandleFunc("/{id}", authHandlers.DeleteAccount).Methods("DELETE")

	return router
}
