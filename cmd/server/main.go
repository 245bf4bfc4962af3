package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dernekpro/backend/docs"
	"github.com/dernekpro/backend/internal/config"
	"github.com/dernekpro/backend/internal/database"
	"github.com/dernekpro/backend/internal/email"
	"github.com/dernekpro/backend/internal/handlers"
	mW "github.com/dernekpro/backend/internal/middleware"
	"github.com/dernekpro/backend/internal/services"
	"github.com/dernekpro/backend/internal/sms"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"
)

// @title DernekPro Backend API
// @version 1.0
// @description API for multi-tenant association management
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env
	viper.ReadInConfig()        // read .env file

	viper.SetEnvPrefix("")

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "DernekPro Backend API"
	docs.SwaggerInfo.Description = "API for multi-tenant association management"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	// Initialize services
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	smsConfig := config.LoadSMSConfig()
	provider := sms.NewProvider(smsConfig)

	emailConfig := config.LoadEmailConfig()
	mailer := email.NewMailer(emailConfig)

	orgAccess := services.NewOrgAccess(db)
	ledgerService := services.NewLedgerService(db)
	transactionService := services.NewTransactionService(db)
	memberService := services.NewMemberService(db)
	meetingService := services.NewMeetingService(db)
	settlementService := services.NewSettlementService(db)
	smsService := services.NewSmsService(db, redisClient, provider, smsConfig)
	emailService := services.NewEmailService(db, mailer)
	smsHandler := handlers.NewSMSHandler(smsService, db)
	qrService := services.NewQRService(db, redisClient)
	qrHandler := handlers.NewQRHandler(qrService, db)
	transcriptionService := services.NewTranscriptionService(db)
	defer transcriptionService.Close()

	// Initialize auth middleware with Redis
	mW.InitAuthMiddleware(redisClient)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// Static file server for organization logos
	r.Handle("/static/org-logos/*", http.StripPrefix("/static/org-logos/",
		mW.StaticFileServer("./static/org-logos")))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Route("/{org}", func(r chi.Router) {
				// Organization profile
				r.Get("/", orgAccess.Profile)

				// Members
				r.Get("/members", memberService.ListMembers)
				r.Post("/members", memberService.CreateMember)
				r.Get("/members/{id}/balance", ledgerService.MemberBalance)
				r.Get("/members/{id}/notes", memberService.ListNotes)
				r.Post("/members/{id}/notes", memberService.CreateNote)

				// Finance
				r.Get("/transactions", transactionService.ListTransactions)
				r.Post("/transactions", transactionService.CreateTransaction)
				r.Get("/finance/kasa", ledgerService.OrganizationCashBook)
				r.Post("/finance/bulk-debit", transactionService.BulkDebit)
				r.Post("/finance/auto-charge", transactionService.AutoCharge)
				r.Get("/finance/reports", ledgerService.FinancialReports)
				r.Get("/finance/settlement-export", settlementService.ExportBankTransfers)

				// Messaging
				r.Post("/sms/send", smsHandler.SendBulk)
				r.Post("/email/send", emailService.SendBulk)

				// QR dues collection
				r.Post("/qr/generate", qrHandler.GenerateQR)
				r.Post("/qr/process", qrHandler.ProcessQR)

				// Meetings
				r.Get("/meetings", meetingService.ListMeetings)
				r.Post("/meetings", meetingService.CreateMeeting)
				r.Post("/meetings/{id}/minutes", transcriptionService.TranscribeMinutes)
			})
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
