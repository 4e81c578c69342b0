package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"github.com/AnshRaj112/physiq-backend/internal/clock"
	"github.com/AnshRaj112/physiq-backend/internal/config"
	"github.com/AnshRaj112/physiq-backend/internal/database"
	"github.com/AnshRaj112/physiq-backend/internal/handlers"
	"github.com/AnshRaj112/physiq-backend/internal/middleware"
	"github.com/AnshRaj112/physiq-backend/internal/onboarding"
	"github.com/AnshRaj112/physiq-backend/internal/routes"
	"github.com/AnshRaj112/physiq-backend/internal/services"
)

const shutdownTimeout = 15 * time.Second

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API until SIGINT or SIGTERM.

SQL stores are migrated on start. With SEED_ON_START=true the demo
members and reward catalog are inserted as well.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	b, err := openBackends(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer b.Close()

	if err := b.migrate(ctx); err != nil {
		return err
	}
	clk := clock.Real()
	if cfg.SeedOnStart {
		if _, err := database.Seed(ctx, b.store, clk, database.DefaultSeed()); err != nil {
			return err
		}
	}

	srv := newServer(cfg, b, clk)
	defer srv.onboarding.Close()

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("🚀 Physiq backend running on :%s", cfg.Port)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Println("✅ Server stopped")
	return nil
}

type server struct {
	handler    http.Handler
	onboarding *onboarding.Service
}

// newServer wires services and middleware on top of the opened backends.
func newServer(cfg *config.Config, b *backends, clk clock.Clock) *server {
	var sessionStore services.SessionStore
	if b.redis != nil {
		sessionStore = services.NewRedisSessionStore(b.redis)
		log.Println("✅ Sessions stored in Redis")
	} else {
		sessionStore = services.NewMemorySessionStore(clk)
	}
	sessions := services.NewSessionManager(sessionStore, services.NewTokenSigner(cfg.SessionSecret, clk))

	users := services.NewUserService(b.store, clk)
	votes := services.NewVoteService(b.store, clk)
	if b.redis != nil {
		votes = votes.WithCache(services.NewRedisCache(b.redis))
		log.Println("✅ Leaderboard cache enabled")
	}
	onb := onboarding.NewService(b.store.Onboarding(), clk, cfg.CelebrationDuration)

	h := &handlers.Handler{
		Users:         users,
		Votes:         votes,
		Messages:      services.NewMessageService(b.store, clk, cfg.MessagingEnforceBlocks),
		Rewards:       services.NewRewardService(b.store),
		Onboarding:    onb,
		Sessions:      sessions,
		SecureCookies: cfg.IsProduction(),
	}

	if cfg.CloudinaryEnabled() {
		uploader, err := services.NewCloudinaryService(cfg.CloudinaryName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret)
		if err != nil {
			log.Printf("⚠️  Warning: Failed to initialize Cloudinary: %v", err)
			log.Println("Profile image uploads will not be available")
		} else {
			h.Uploader = uploader
			log.Println("✅ Cloudinary service initialized")
		}
	} else {
		log.Println("Warning: Cloudinary credentials not found. Profile image uploads will not be available")
	}

	r := chi.NewRouter()
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Production: SecurityHeaders, HostCheck, per-IP and login rate limits.
	// Elsewhere headers only, plus the Redis write limit when Redis is up.
	if cfg.IsProduction() {
		for _, mw := range middleware.ProductionSecurity(cfg.AllowedHost, cfg.TrustProxy) {
			r.Use(mw)
		}
		log.Println("✅ Production security enabled (security headers, host check, per-IP + login rate limiting)")
	} else {
		r.Use(middleware.SecurityHeaders)
	}
	if b.redis != nil {
		r.Use(middleware.RedisRateLimit(b.redis, cfg.TrustProxy))
	}
	r.Use(middleware.Session(services.SessionCookieName, sessions, users))

	routes.SetupRoutes(r, h, middleware.NewMessageLimiter())

	return &server{handler: r, onboarding: onb}
}
