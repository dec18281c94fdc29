package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/spf13/cobra"

	"github.com/cuemby/hangar/pkg/config"
	"github.com/cuemby/hangar/pkg/deploy"
	"github.com/cuemby/hangar/pkg/events"
	"github.com/cuemby/hangar/pkg/httpapi"
	"github.com/cuemby/hangar/pkg/log"
	"github.com/cuemby/hangar/pkg/metrics"
	"github.com/cuemby/hangar/pkg/reconciler"
	"github.com/cuemby/hangar/pkg/runtime"
	"github.com/cuemby/hangar/pkg/security"
	"github.com/cuemby/hangar/pkg/source"
	"github.com/cuemby/hangar/pkg/storage"
	"github.com/cuemby/hangar/pkg/tenantdb"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the hangar API server",
	Long: `serve loads configuration from the environment, connects to the
control-plane and tenant databases, the Docker daemon, and the GitHub
App credentials, then starts the HTTP API and the background
reconciler until it receives SIGINT or SIGTERM.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	ctx := context.Background()

	store, err := storage.Open(ctx, cfg.ControlPlaneDSN)
	if err != nil {
		metrics.RegisterComponent("store", false, err.Error())
		return fmt.Errorf("open control-plane store: %w", err)
	}
	defer store.Close()
	metrics.RegisterComponent("store", true, "connected")

	tenantConn, err := sql.Open("mysql", cfg.TenantDSN)
	if err != nil {
		metrics.RegisterComponent("tenantdb", false, err.Error())
		return fmt.Errorf("open tenant database: %w", err)
	}
	defer tenantConn.Close()
	tenantConn.SetMaxOpenConns(cfg.MaxDBConns)
	if err := tenantConn.PingContext(ctx); err != nil {
		metrics.RegisterComponent("tenantdb", false, err.Error())
		return fmt.Errorf("ping tenant database: %w", err)
	}
	metrics.RegisterComponent("tenantdb", true, "connected")
	tenantProvisioner := tenantdb.New(tenantConn)

	secretsManager, err := security.NewSecretsManager(cfg.SecretsKey)
	if err != nil {
		return fmt.Errorf("build secrets manager: %w", err)
	}

	rt, err := runtime.NewAdapter(runtime.Config{
		MemoryMB:            cfg.ContainerMemoryMB,
		CPUQuota:            cfg.ContainerCPUQuota,
		NetworkName:         cfg.NetworkName,
		AppPrefix:           cfg.NamingPrefix,
		DomainSuffix:        cfg.DomainSuffix,
		TraefikEntrypoint:   cfg.TraefikEntrypoint,
		TraefikCertResolver: cfg.TraefikCertResolver,
		GrypeEnabled:        cfg.ScannerEnabled,
		GrypeFailOnSeverity: cfg.ScannerFailOnSeverity,
	})
	if err != nil {
		metrics.RegisterComponent("runtime", false, err.Error())
		return fmt.Errorf("connect to container runtime: %w", err)
	}
	defer rt.Close()
	metrics.RegisterComponent("runtime", true, "connected")

	srcFetcher := source.New(source.Config{
		AppID:         cfg.GitHubAppID,
		PrivateKeyPEM: cfg.GitHubPrivateKeyPEM,
	})

	hub := events.NewHub()

	orch := deploy.New(store, rt, tenantProvisioner, secretsManager, srcFetcher, hub, deploy.Config{
		NamingPrefix: cfg.NamingPrefix,
		BaseImage:    cfg.BaseImage,
	})

	recon := reconciler.New(rt, store, hub)
	recon.Start()
	defer recon.Stop()

	metrics.SetVersion(Version)

	auth := httpapi.NewJWTAuthenticator(cfg.SessionSecret)
	server := httpapi.New(store, orch, hub, rt, secretsManager, auth, httpapi.Config{
		TimeoutNormal: cfg.TimeoutNormal,
		TimeoutLong:   cfg.TimeoutLong,
		DomainSuffix:  cfg.DomainSuffix,
	})

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.ListenHost, cfg.ListenPort),
		Handler: server.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Logger.Info().Str("addr", httpServer.Addr).Msg("hangar API server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info("shutdown signal received")
	case err := <-errCh:
		log.Errorf("API server error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Errorf("graceful shutdown failed", err)
	}

	log.Info("shutdown complete")
	return nil
}
