// Package main provides the control plane's entry point: it loads
// configuration, opens the database, applies migrations, wires every
// domain service together, and serves the HTTP API until terminated.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flowplane/controlplane/internal/app/audit"
	"github.com/flowplane/controlplane/internal/app/auth"
	"github.com/flowplane/controlplane/internal/app/compiler"
	"github.com/flowplane/controlplane/internal/app/config"
	"github.com/flowplane/controlplane/internal/app/crypto"
	domainsecret "github.com/flowplane/controlplane/internal/app/domain/secret"
	"github.com/flowplane/controlplane/internal/app/httpapi"
	"github.com/flowplane/controlplane/internal/app/logging"
	"github.com/flowplane/controlplane/internal/app/scopes"
	"github.com/flowplane/controlplane/internal/app/secretsrouter"
	"github.com/flowplane/controlplane/internal/app/snapshot"
	"github.com/flowplane/controlplane/internal/app/storage/postgres"
	"github.com/flowplane/controlplane/internal/platform/database"
	"github.com/flowplane/controlplane/internal/platform/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("controlplaned: loading configuration: %v", err)
	}

	logger := logging.New("controlplaned", cfg.LogLevel, cfg.LogFormat)
	ctx := context.Background()

	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("controlplaned: opening database: %v", err)
	}
	defer db.Close()

	if err := migrations.Apply(ctx, db); err != nil {
		log.Fatalf("controlplaned: applying migrations: %v", err)
	}

	store := postgres.New(db)

	encryption, err := crypto.NewService(cfg.EncryptionKeys, cfg.EncryptionKeyVersion)
	if err != nil {
		log.Fatalf("controlplaned: initializing encryption service: %v", err)
	}

	auditSvc := audit.New(store)

	scopeRegistry := scopes.New(store)
	if err := scopeRegistry.Init(ctx); err != nil {
		logger.WithContext(ctx).WithField("error", err).Warn("scope registry failed to initialize; falling back to format-only validation")
	}

	if !cfg.SuppressBootstrapBanner {
		presented, err := auth.Bootstrap(ctx, store, auditSvc)
		if err != nil {
			log.Fatalf("controlplaned: bootstrapping token: %v", err)
		}
		if presented != "" {
			fmt.Printf("\n==============================================================\n")
			fmt.Printf("  No active tokens found. Seeded a bootstrap token:\n\n")
			fmt.Printf("    %s\n\n", presented)
			fmt.Printf("  Store it now; it cannot be retrieved again. Use it to mint\n")
			fmt.Printf("  narrower personal access tokens, then revoke it.\n")
			fmt.Printf("==============================================================\n\n")
		}
	}

	secretRouter := secretsrouter.New(auditSvc)
	secretRouter.Register(domainsecret.SourceDatabase, secretsrouter.NewDatabaseBackend(store, encryption))
	if cfg.SecretBackendVaultAddr != "" {
		secretRouter.Register(domainsecret.SourceVault, secretsrouter.NewVaultBackend(
			cfg.SecretBackendVaultAddr,
			cfg.SecretBackendVaultToken,
			cfg.SecretBackendVaultMountPath,
			cfg.SecretBackendVaultNamespace,
			cfg.Timeouts.SecretBackendConnect,
			cfg.Timeouts.SecretBackendRequest,
		))
	}

	compilerSvc := compiler.New(store, auditSvc)
	snapshotAssembler := snapshot.New(store, secretRouter)
	tokens := auth.NewAuthenticator(store)
	sessions := auth.NewSessionIssuer([]byte(cfg.SessionJWTSecret), cfg.SessionTTL)

	router := httpapi.NewRouter(store, compilerSvc, snapshotAssembler, secretRouter, encryption, auditSvc, scopeRegistry, tokens, sessions, logger)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.WithContext(ctx).WithField("port", cfg.HTTPPort).Info("controlplaned listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("controlplaned: http server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.WithContext(ctx).Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithContext(ctx).WithField("error", err).Error("graceful shutdown failed")
	}
}
