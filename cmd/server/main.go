package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	marketecho "go.pilab.hu/market/api/echo"
	"go.pilab.hu/market/cache"
	redisstore "go.pilab.hu/market/cache/redis"
	"go.pilab.hu/market/config"
	"go.pilab.hu/market/domain"
	"go.pilab.hu/market/internal/auth"
	"go.pilab.hu/market/internal/crypto"
	"go.pilab.hu/market/internal/federation"
	"go.pilab.hu/market/internal/memstore"
	"go.pilab.hu/market/internal/metrics"
	"go.pilab.hu/market/internal/server"
	"go.pilab.hu/market/log"
	"go.pilab.hu/market/middleware"
	"go.pilab.hu/market/mongodb"
	"go.pilab.hu/market/services"
	"go.pilab.hu/market/tracing"
)

// closer releases a backend on shutdown.
type closer func(ctx context.Context)

type stores struct {
	identities domain.IdentityRepository
	products   domain.ProductRepository
	ping       marketecho.ReadinessCheck
	close      closer
}

type caches struct {
	profiles    cache.ProfileCache
	revocations cache.RevocationStore
	ping        marketecho.ReadinessCheck
	close       closer
}

func main() {
	// Load configuration first
	cfg, err := config.LoadConfig()
	if err != nil {
		stdLog := zerolog.New(os.Stderr).With().Timestamp().Logger()
		stdLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	appLogger, err := log.New(cfg.LogLevel, cfg.LogPretty)
	if err != nil {
		stdLog := zerolog.New(os.Stderr).With().Timestamp().Logger()
		stdLog.Fatal().Err(err).Msg("Failed to initialize logger")
	}

	if err := run(cfg, appLogger); err != nil {
		appLogger.Fatal(context.Background(), "Server stopped with error", err)
	}
}

func run(cfg *config.ServerConfig, appLogger log.Logger) error {
	ctx := context.Background()
	appLogger.Info(ctx, "Starting market server...", map[string]interface{}{
		"http_port":     cfg.HTTPPort,
		"store_backend": cfg.StoreBackend,
		"cache_backend": cfg.CacheBackend,
		"log_level":     cfg.LogLevel,
		"otel_service":  cfg.OtelServiceName,
	})

	var traceOut io.Writer
	if cfg.OtelTracesStdout {
		traceOut = os.Stdout
	}
	tp, err := tracing.InitTracerProvider(cfg.OtelServiceName, traceOut)
	if err != nil {
		return fmt.Errorf("init tracer provider: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.InitCustomMetrics(reg)

	key, generated, err := crypto.LoadOrGenerateRSAKey(cfg.JWTPrivateKeyFile)
	if err != nil {
		return fmt.Errorf("load signing key: %w", err)
	}
	if generated {
		appLogger.Warn(ctx, "JWT_PRIVATE_KEY_FILE not set, using an ephemeral signing key; tokens will not survive a restart")
	}
	signer, err := services.NewTokenSigner(key)
	if err != nil {
		return fmt.Errorf("create token signer: %w", err)
	}

	opts := []marketecho.Option{marketecho.WithMetrics(reg)}
	if cfg.GoogleEnabled() {
		google, err := federation.NewGoogleProvider(federation.GoogleConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		})
		if err != nil {
			return fmt.Errorf("configure google provider: %w", err)
		}
		opts = append(opts,
			marketecho.WithGoogle(google, cfg.GoogleFrontendRedirect),
			marketecho.WithSecureCookies(strings.HasPrefix(cfg.GoogleRedirectURL, "https://")),
		)
		appLogger.Info(ctx, "Google sign-in enabled.")
	}

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	ch, err := openCaches(ctx, cfg)
	if err != nil {
		st.close(ctx)
		return err
	}

	// Services
	hasher := auth.NewArgon2PasswordHasher(auth.DefaultArgon2Params)
	resolver := services.NewProfileResolver(st.identities, ch.profiles, time.Duration(cfg.CacheExpireMinutes)*time.Minute)
	tokens := services.NewTokenService(signer, ch.revocations, time.Duration(cfg.JWTExpireMinutes)*time.Minute)
	accounts := services.NewAccountService(st.identities, st.products, hasher, resolver)
	authSvc := services.NewAuthService(accounts, tokens, st.identities, resolver)
	catalog := services.NewProductService(st.products)

	limiter := middleware.NewRateLimiter(middleware.RateLimits{
		middleware.PolicyAnonymous:  cfg.RateLimitAnonymous,
		string(domain.RoleCustomer): cfg.RateLimitCustomers,
		string(domain.RoleSeller):   cfg.RateLimitSellers,
		string(domain.RoleAdmin):    cfg.RateLimitAdmins,
	})

	opts = append(opts, marketecho.WithRateLimiter(limiter))
	if st.ping != nil {
		opts = append(opts, marketecho.WithReadinessCheck("mongodb", st.ping))
	}
	if ch.ping != nil {
		opts = append(opts, marketecho.WithReadinessCheck("redis", ch.ping))
	}

	api := marketecho.NewAPI(accounts, authSvc, catalog, tokens, middleware.NewGate(tokens, resolver), opts...)
	httpServer := server.NewHTTPServer(cfg, appLogger, api)

	serveErr := make(chan error, 1)
	go func() {
		appLogger.Info(ctx, fmt.Sprintf("HTTP server listening on port %s", cfg.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		appLogger.Info(ctx, fmt.Sprintf("Received signal: %v. Shutting down server...", sig))
	case err := <-serveErr:
		runErr = fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "HTTP server shutdown error", err)
	}
	limiter.Close()
	ch.close(shutdownCtx)
	st.close(shutdownCtx)
	if err := tp.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "TracerProvider shutdown error", err)
	}

	appLogger.Info(shutdownCtx, "Server gracefully stopped.")
	return runErr
}

func openStores(ctx context.Context, cfg *config.ServerConfig) (*stores, error) {
	if cfg.StoreBackend == "memory" {
		return &stores{
			identities: memstore.NewIdentityStore(),
			products:   memstore.NewProductStore(),
			close:      func(context.Context) {},
		}, nil
	}

	client, err := mongodb.Connect(ctx, mongodb.Options{
		URI:              cfg.MongoURI,
		UsersDB:          cfg.MongoUsersDB,
		ProductsDB:       cfg.MongoProductsDB,
		MaxPoolSize:      cfg.MongoMaxPoolSize,
		MinPoolSize:      cfg.MongoMinPoolSize,
		ConnectTimeout:   time.Duration(cfg.MongoConnectTimeout) * time.Second,
		OperationTimeout: time.Duration(cfg.MongoOperationTimeout) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	identities, err := mongodb.NewIdentityRepository(ctx, client)
	if err != nil {
		client.Close(ctx)
		return nil, fmt.Errorf("init identity repository: %w", err)
	}
	return &stores{
		identities: identities,
		products:   mongodb.NewProductRepository(client),
		ping:       client.Ping,
		close:      client.Close,
	}, nil
}

func openCaches(ctx context.Context, cfg *config.ServerConfig) (*caches, error) {
	if cfg.CacheBackend == "memory" {
		profiles := cache.NewMemoryProfileCache()
		revocations := cache.NewMemoryRevocationStore()
		return &caches{
			profiles:    profiles,
			revocations: revocations,
			close: func(context.Context) {
				profiles.Close()
				revocations.Close()
			},
		}, nil
	}

	client, err := redisstore.NewClient(ctx, redisstore.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Timeout:  time.Duration(cfg.RedisTimeout) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &caches{
		profiles:    redisstore.NewProfileCache(client),
		revocations: redisstore.NewRevocationStore(client),
		ping: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		close: func(context.Context) {
			_ = client.Close()
		},
	}, nil
}
