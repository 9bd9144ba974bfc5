package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/spf13/cobra"

	"github.com/foxvalleyai/website/api"
	"github.com/foxvalleyai/website/auth"
	"github.com/foxvalleyai/website/internal/logutil"
)

// limiterSweepInterval is how often expired login failure records are
// dropped.
const limiterSweepInterval = 10 * time.Minute

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the website API server",
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
	addCommonFlags(serverCmd)
	serverCmd.Flags().String("listen", "", "Address to listen on (default :3000)")
	serverCmd.Flags().String("tls-cert", "", "Path to TLS certificate file")
	serverCmd.Flags().String("tls-key", "", "Path to TLS key file")
	serverCmd.Flags().Bool("allow-insecure-cookies", false, "Drop the Secure cookie flag on plain HTTP requests (local development only)")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger := logutil.Must(cfg.Log.Level, cfg.Log.Format)
	ctx, stop := signal.NotifyContext(logutil.WithLogger(cmd.Context(), logger), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.UsesDefaultSecret() {
		logger.Warn().Msg("JWT secret is the built-in placeholder; anyone can forge sessions. Set FOXVALLEY_JWT_SECRET")
	}

	repo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer repo.Close()

	codec, err := auth.NewTokenCodec([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return err
	}
	transport := auth.NewCookieTransport(cfg.Auth.SessionTTL,
		auth.WithCookieName(cfg.Auth.CookieName),
		auth.WithInsecureCookies(cfg.Auth.AllowInsecure),
	)
	authn := auth.NewAuthenticator(transport, codec, repo)
	hasher := auth.NewHasher(auth.WithCost(cfg.Auth.BcryptCost))

	a, err := api.New(repo, authn, hasher,
		api.WithLogger(logger),
		api.WithContentCache(cfg.Cache.TTL),
		api.WithLeadWebhook(cfg.Leads.WebhookURL, cfg.Leads.Timeout),
	)
	if err != nil {
		return fmt.Errorf("failed to initialise api: %w", err)
	}
	defer a.Close()

	go sweepLimiter(ctx, a)

	var tlsConfig *tls.Config
	if cfg.TLS.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		if err != nil {
			return fmt.Errorf("failed to load TLS key pair: %w", err)
		}
		tlsConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
	}

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           newRouter(logger, a),
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	done := make(chan error, 1)
	go func() {
		var err error
		if tlsConfig != nil {
			err = server.ListenAndServeTLS("", "")
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			done <- fmt.Errorf("server failed: %w", err)
			return
		}
		done <- nil
	}()

	printBanner(os.Stdout)
	logger.Info().
		Str("listen", cfg.Listen).
		Str("storage", cfg.Storage.Backend).
		Bool("tls", tlsConfig != nil).
		Msg("Server started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-done:
		return err
	}
}

// newRouter assembles the middleware chain, the health check and the API
// mounted at /api.
func newRouter(logger zerolog.Logger, a *api.API) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(logger))
	r.Use(hlog.RequestIDHandler("req_id", "X-Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Str("remote_addr", r.RemoteAddr).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("Request")
	}))
	r.Use(middleware.Recoverer)
	r.Use(api.SecurityHeaders)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	r.Mount("/api", a.Router())
	return r
}

func sweepLimiter(ctx context.Context, a *api.API) {
	ticker := time.NewTicker(limiterSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.SweepLimiter()
		}
	}
}
