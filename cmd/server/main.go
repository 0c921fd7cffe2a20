package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/theearthwanderer/rentalagent/internal/agent"
	"github.com/theearthwanderer/rentalagent/internal/capability"
	"github.com/theearthwanderer/rentalagent/internal/config"
	"github.com/theearthwanderer/rentalagent/internal/handler"
	"github.com/theearthwanderer/rentalagent/internal/repository"
	"github.com/theearthwanderer/rentalagent/internal/service"
	"github.com/theearthwanderer/rentalagent/internal/session"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	setupLogging(cfg.Logging)

	log.Info().Str("version", Version).Str("build_time", BuildTime).Str("git_commit", GitCommit).Msg("rental agent starting")

	gin.SetMode(cfg.Server.GinMode)

	repo, err := repository.NewPostgresRepository(
		cfg.GetPostgreSQLDSN(),
		cfg.PostgreSQL.MaxConnections,
		cfg.PostgreSQL.MaxIdleConnections,
		cfg.Embedding.Dimensions,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer repo.Close()
	log.Info().Msg("connected to PostgreSQL listing store")

	aiClient := service.NewOpenAIClient(&cfg.OpenAI, &cfg.Embedding)
	if aiClient.IsEnabled() {
		log.Info().
			Str("api_base", cfg.OpenAI.APIBase).
			Str("chat_model", cfg.OpenAI.ChatModel).
			Str("embedding_model", cfg.Embedding.Model).
			Int("dimensions", cfg.Embedding.Dimensions).
			Msg("completion and embedding client initialized")
	} else {
		log.Warn().Msg("OPENAI_API_KEY not set, agent turns and semantic search will fail")
	}

	engine := service.NewSearchEngine(repo, aiClient, cfg.Search.ResultCap)

	registry := capability.NewRegistry()
	if err := registry.Register(capability.NewSearchListings(engine)); err != nil {
		log.Fatal().Err(err).Msg("failed to register search_listings")
	}
	if err := registry.Register(capability.NewGetListingDetails(engine)); err != nil {
		log.Fatal().Err(err).Msg("failed to register get_listing_details")
	}

	sessions := session.NewStore()
	rentalAgent := agent.New(aiClient, registry, cfg.Agent)

	chatHandler := handler.NewChatHandler(rentalAgent, sessions)
	searchHandler := handler.NewSearchHandler(engine)

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = strings.Split(cfg.Server.AllowedOrigins, ",")
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "rental-agent",
			"version": Version,
		})
	})

	apiV1 := router.Group("/api/v1")
	{
		apiV1.POST("/sessions", chatHandler.CreateSession)
		apiV1.GET("/sessions/:id", chatHandler.GetSession)
		apiV1.POST("/chat", chatHandler.Chat)

		apiV1.POST("/search", searchHandler.Search)
		apiV1.GET("/listings/:id", searchHandler.GetListing)
		apiV1.POST("/listings/batch", searchHandler.IngestBatch)
	}

	router.GET("/ws/:session_id", chatHandler.Websocket)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Info().Str("addr", addr).Msg("starting server")

	go func() {
		if err := router.Run(addr); err != nil {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
}

func setupLogging(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
