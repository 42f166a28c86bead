package main

import (
	"context"
	"log"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/viper"
	storage_go "github.com/supabase-community/storage-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"donate-app/internal/handlers"
	"donate-app/internal/middleware"
	"donate-app/internal/qr"
	"donate-app/internal/store"
	"donate-app/internal/sweep"
	ws "donate-app/internal/websocket"
)

// Config holds everything loaded from config.env / the environment.
type Config struct {
	DSN       string `mapstructure:"DSN"`
	JWTSecret string `mapstructure:"JWT_SECRET"`
	Port      string `mapstructure:"PORT"`

	// Beneficiary details embedded in every donation QR.
	BankAccount string `mapstructure:"BANK_ACCOUNT"`
	BankCode    string `mapstructure:"BANK_CODE"`
	QRBaseURL   string `mapstructure:"QR_BASE_URL"`
	QRTemplate  string `mapstructure:"QR_TEMPLATE"`

	IntentTTLHours int `mapstructure:"INTENT_TTL_HOURS"`

	SupabaseURL    string `mapstructure:"SUPABASE_URL"`
	SupabaseKey    string `mapstructure:"SUPABASE_SERVICE_KEY"`
	SupabaseBucket string `mapstructure:"SUPABASE_BUCKET"`
}

// loadConfig reads config.env from the working directory, with real
// environment variables taking precedence.
func loadConfig() (config Config, err error) {
	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("QR_BASE_URL", "https://qr.sepay.vn")
	viper.SetDefault("QR_TEMPLATE", "compact")
	viper.SetDefault("INTENT_TTL_HOURS", 72)
	viper.SetDefault("SUPABASE_BUCKET", "campaign-images")

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}

func main() {
	log.Println("Starting donation server...")

	config, err := loadConfig()
	if err != nil {
		log.Fatal("cannot load config:", err)
	}

	db, err := sqlx.Connect("pgx", config.DSN)
	if err != nil {
		log.Fatal("cannot connect to database:", err)
	}
	defer db.Close()
	log.Println("Successfully connected to PostgreSQL!")

	intents := store.NewIntentStore(db)
	transactions := store.NewTransactionStore(db)
	campaigns := store.NewCampaignStore(db)
	feed := store.NewFeedStore(db)

	qrBuilder := &qr.Builder{
		BaseURL:  config.QRBaseURL,
		Account:  config.BankAccount,
		Bank:     config.BankCode,
		Template: config.QRTemplate,
	}

	hub := ws.NewHub()
	go hub.Run()

	sweeper := sweep.New(intents, time.Duration(config.IntentTTLHours)*time.Hour, time.Hour)
	go sweeper.Run(context.Background())

	authHandler := handlers.NewAuthHandler(db, config.JWTSecret)
	donationHandler := handlers.NewDonationHandler(intents, qrBuilder)
	webhookHandler := handlers.NewWebhookHandler(intents, campaigns, transactions, feed, hub)
	campaignHandler := handlers.NewCampaignHandler(campaigns, intents)
	feedHandler := handlers.NewFeedHandler(feed, transactions)
	wsHandler := handlers.NewWebSocketHandler(campaigns, hub)

	if config.SupabaseURL != "" && config.SupabaseKey != "" {
		campaignHandler.Storage = storage_go.NewClient(config.SupabaseURL+"/storage/v1", config.SupabaseKey, nil)
		campaignHandler.StorageURL = config.SupabaseURL
		campaignHandler.StorageBucket = config.SupabaseBucket
	} else {
		log.Println("Supabase storage not configured, image upload disabled")
	}

	r := gin.Default()
	r.Use(cors.Default())

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})

	api := r.Group("/api")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
		}

		api.POST("/initiate-donation", donationHandler.InitiateDonation)
		api.GET("/check-donation/:donationId", donationHandler.CheckDonation)
		api.POST("/webhook/bank", webhookHandler.HandleBankWebhook)

		api.GET("/campaigns", campaignHandler.ListCampaigns)
		api.GET("/campaigns/:id", campaignHandler.GetCampaign)
		api.GET("/campaigns/:id/donations", campaignHandler.GetCampaignDonations)

		api.GET("/feed", feedHandler.GetFeed)
		api.GET("/transactions", feedHandler.GetTransactions)

		protected := api.Group("/")
		protected.Use(middleware.AuthMiddleware(config.JWTSecret))
		{
			protected.GET("/me", authHandler.GetMe)
			protected.POST("/campaigns", campaignHandler.CreateCampaign)
			protected.POST("/campaigns/:id/image", campaignHandler.UploadCampaignImage)
		}
	}

	r.GET("/ws/campaigns/:id", wsHandler.ServeWs)

	log.Println("Server starting on port " + config.Port)
	if err := r.Run(":" + config.Port); err != nil {
		log.Fatal("could not start server:", err)
	}
}
