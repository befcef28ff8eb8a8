package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edvin/idp/internal/api"
	"github.com/edvin/idp/internal/config"
	"github.com/edvin/idp/internal/core"
	"github.com/edvin/idp/internal/db"
	"github.com/edvin/idp/internal/logging"
	"github.com/edvin/idp/internal/model"
	"github.com/edvin/idp/internal/platform"
)

func main() {
	if len(os.Args) >= 2 && os.Args[1] == "create-client" {
		createClient(os.Args[2:])
		return
	}

	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	migrateDirFlag := flag.String("migrate-dir", db.DefaultMigrationsDir, "Migration files directory")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate("idp-api"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	if *migrateFlag {
		logger.Info().Str("dir", *migrateDirFlag).Msg("running database migrations")
		if err := db.Migrate(cfg.DatabaseURL, *migrateDirFlag); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	signer, err := core.LoadOrCreateSigner(ctx, pool)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load signing key")
	}
	logger.Info().Str("kid", signer.KeyID()).Msg("signing key ready")

	var idp core.IdentityProvider
	if cfg.GoogleClientID != "" {
		idp = core.NewGoogleProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)
		logger.Info().Msg("google federated login enabled")
	}

	services := core.NewServices(pool, signer, core.Options{
		IssuerURL:        cfg.IssuerURL,
		AdminClientID:    cfg.AdminClientID,
		DefaultRoles:     core.ParseDefaultRoles(cfg.DefaultRoles),
		BcryptCost:       cfg.BcryptCost,
		LockoutThreshold: cfg.LockoutThreshold,
		LockoutDuration:  cfg.LockoutDuration,
		AccessTokenTTL:   cfg.AccessTokenTTL,
		AuthRequestTTL:   cfg.AuthRequestTTL,
		AuthCodeTTL:      cfg.AuthCodeTTL,
		IdentityProvider: idp,
	})

	srv := api.NewServer(logger, pool, signer, services, cfg)

	httpServer := &http.Server{
		Addr:         cfg.HTTPListenAddr,
		Handler:      srv,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPListenAddr).Msg("starting authorization server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
}

// createClient registers an OAuth client from the command line and prints
// its first secret. Used to bootstrap the administrative client before any
// account exists.
func createClient(args []string) {
	fs := flag.NewFlagSet("create-client", flag.ExitOnError)
	clientID := fs.String("client-id", "", "Client identifier (required)")
	name := fs.String("name", "", "Display name (required)")
	redirectURI := fs.String("redirect-uri", "", "Allowed redirect URI (required)")
	scopes := fs.String("scopes", "openid email profile", "Space-separated allowed scopes")
	fs.Parse(args)

	if *clientID == "" || *name == "" || *redirectURI == "" {
		fmt.Fprintln(os.Stderr, "error: --client-id, --name and --redirect-uri are required")
		fmt.Fprintln(os.Stderr, "usage: idp-api create-client --client-id <id> --name <name> --redirect-uri <uri>")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	clients := core.NewClientService(pool, cfg.AdminClientID)
	client := &model.OAuthClient{
		ID:            platform.NewID(),
		ClientID:      *clientID,
		DisplayName:   *name,
		Confidential:  true,
		RedirectURIs:  []string{*redirectURI},
		AllowedScopes: core.SplitScope(*scopes),
		RequirePKCE:   true,
		CreatedAt:     time.Now(),
	}
	if err := clients.Create(ctx, client); err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to create client: %v\n", err)
		os.Exit(1)
	}

	secrets := core.NewClientSecretService(pool, cfg.BcryptCost)
	secret, plaintext, err := secrets.Create(ctx, client.ClientID, "initial secret", "", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to create client secret: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Client created successfully.\n\n")
	fmt.Printf("  Client ID:  %s\n", client.ClientID)
	fmt.Printf("  Secret ID:  %s\n", secret.ID)
	fmt.Printf("  Secret:     %s\n\n", plaintext)
	fmt.Printf("Save this secret: it will not be shown again.\n")
}
