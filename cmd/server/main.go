package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	echoapi "github.com/reviewpilot/crm-api/api/echo"
	"github.com/reviewpilot/crm-api/cache"
	"github.com/reviewpilot/crm-api/config"
	"github.com/reviewpilot/crm-api/internal/auth"
	"github.com/reviewpilot/crm-api/internal/federation"
	"github.com/reviewpilot/crm-api/internal/ratelimit"
	"github.com/reviewpilot/crm-api/internal/scraper"
	applog "github.com/reviewpilot/crm-api/log"
	"github.com/reviewpilot/crm-api/middleware"
	"github.com/reviewpilot/crm-api/mongodb"
	"github.com/reviewpilot/crm-api/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("loading configuration failed")
	}
	applog.Setup(cfg.LogLevel, cfg.LogPretty)

	log.Info().
		Str("http_port", cfg.HTTPPort).
		Str("mongo_db", cfg.MongoDBName).
		Str("log_level", cfg.LogLevel).
		Msg("starting crm-api server")

	ctx := context.Background()

	mongoClient, db, err := mongodb.Connect(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		log.Fatal().Err(err).Msg("mongodb initialization failed")
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			log.Warn().Err(err).Msg("mongodb disconnect failed")
		}
	}()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()

	userRepo, err := mongodb.NewUserRepository(ctx, db)
	if err != nil {
		log.Fatal().Err(err).Msg("user repository initialization failed")
	}
	tokenRepo, err := mongodb.NewRefreshTokenRepository(ctx, db)
	if err != nil {
		log.Fatal().Err(err).Msg("refresh token repository initialization failed")
	}
	reviewRepo, err := mongodb.NewReviewRepository(ctx, db)
	if err != nil {
		log.Fatal().Err(err).Msg("review repository initialization failed")
	}

	accessTTL := time.Duration(cfg.AccessTokenTTLMin) * time.Minute
	refreshTTL := time.Duration(cfg.RefreshTokenTTLDays) * 24 * time.Hour

	codec, err := auth.NewTokenCodec(
		map[string][]byte{cfg.JWTKeyID: []byte(cfg.JWTSecretKey)},
		cfg.JWTKeyID, cfg.JWTIssuer, accessTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("token codec initialization failed")
	}
	hasher := auth.NewPBKDF2Hasher(0)

	var verifiers []federation.Verifier
	if cfg.GoogleClientID != "" {
		google, err := federation.NewGoogleVerifier(cfg.GoogleClientID)
		if err != nil {
			log.Fatal().Err(err).Msg("google verifier initialization failed")
		}
		verifiers = append(verifiers, google)
	} else {
		log.Warn().Msg("GOOGLE_CLIENT_ID not set, google sign-in disabled")
	}

	limiter := ratelimit.New(redisClient, "auth",
		int64(cfg.LoginMaxAttempts), time.Duration(cfg.LoginWindowSec)*time.Second)

	authService := services.NewAuthService(
		userRepo, tokenRepo, hasher, codec, verifiers, limiter, refreshTTL)
	userService := services.NewUserService(userRepo, tokenRepo, reviewRepo, hasher)
	reviewService := services.NewReviewService(reviewRepo,
		scraper.NewClient(cfg.ApifyToken, scraper.WithActor(cfg.ApifyActor)))

	subjects := cache.NewSubjectCache(accessTTL)
	defer subjects.Stop()
	authn := middleware.NewAuthenticator(authService, subjects)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
	}))

	echoapi.NewAPI(authService, userService, reviewService).
		RegisterRoutes(e, authn.Middleware())

	go func() {
		if err := e.Start(":" + cfg.HTTPPort); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
