package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nutrilog/sessiond/audit"
	"github.com/nutrilog/sessiond/config"
	"github.com/nutrilog/sessiond/factor"
	sessionhttp "github.com/nutrilog/sessiond/http"
	"github.com/nutrilog/sessiond/identity"
	log "github.com/nutrilog/sessiond/logger"
	"github.com/nutrilog/sessiond/login"
	"github.com/nutrilog/sessiond/principal"
	"github.com/nutrilog/sessiond/revocation"
	"github.com/nutrilog/sessiond/token"
)

const (
	defaultAddress           = "127.0.0.1:8300"
	defaultRetentionInterval = time.Hour

	// signingKeyEnv overrides the config-file signing key.
	signingKeyEnv = "SESSIOND_SIGNING_KEY"
)

var (
	configPath string

	ServerCmd = &cobra.Command{
		Use:   "server",
		Short: "This command starts a sessiond server that responds to API requests",
		Long: `
Usage: sessiond server [options]

  This command starts a sessiond server that responds to API requests.
  Start a server with a configuration file:

      $ sessiond server --config=/etc/sessiond/config.hcl
  `,
		RunE: run,
	}
)

func init() {
	ServerCmd.Flags().StringVar(&configPath, "config", "", "Path to the HCL configuration file")
}

func run(cmd *cobra.Command, args []string) error {
	conf := &config.Config{}
	if configPath != "" {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		conf = loaded
	}

	logConfig := &log.Config{
		Level:   log.ParseLogLevel(conf.LogLevel),
		Format:  log.ParseOutputFormat(conf.LogFormat),
		Outputs: log.DefaultConfig().Outputs,
	}
	if conf.LogFile != "" {
		fileConfig := log.DefaultFileConfig(conf.LogFile)
		if conf.LogRotateMegabytes > 0 {
			fileConfig.MaxSize = conf.LogRotateMegabytes
		}
		if conf.LogRotateMaxFiles > 0 {
			fileConfig.MaxBackups = conf.LogRotateMaxFiles
		}
		logConfig.FileConfig = fileConfig
	}
	logger := log.NewZerologLogger(logConfig)
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Credential store.
	var credStore revocation.Store
	if conf.Storage != nil && conf.Storage.Type == "postgres" {
		store, err := revocation.NewPostgresStore(ctx, revocation.PostgresStoreConfig{
			ConnectionURL:    conf.Storage.ConnectionURL,
			SkipCreateTables: conf.Storage.SkipCreateTables,
		})
		if err != nil {
			return fmt.Errorf("failed to open credential store: %w", err)
		}
		credStore = store
		logger.Info("credential store initialized", log.String("type", "postgres"))
	} else {
		credStore = revocation.NewInmemStore()
		logger.Info("credential store initialized", log.String("type", "inmem"))
	}
	defer credStore.Close()

	// Audit devices.
	auditManager := audit.NewManager(logger)
	defer auditManager.Close()
	if conf.Audit != nil && conf.Audit.Type == "file" {
		sink, err := audit.NewFileSink(audit.FileSinkConfig{
			Path:            conf.Audit.Path,
			RotateMegabytes: conf.Audit.RotateMegabytes,
			RotateMaxFiles:  conf.Audit.RotateMaxFiles,
		})
		if err != nil {
			return fmt.Errorf("failed to open audit device: %w", err)
		}
		if err := auditManager.RegisterDevice("file", sink); err != nil {
			return err
		}
	}

	revoker := revocation.NewService(credStore, auditManager, logger)

	// Token issuer.
	signingKey := os.Getenv(signingKeyEnv)
	if signingKey == "" && conf.Token != nil {
		signingKey = conf.Token.SigningKey
	}
	if signingKey == "" {
		return errors.New("a signing key is required (set " + signingKeyEnv + ")")
	}

	issuerConfig := token.DefaultIssuerConfig()
	issuerConfig.SigningKey = []byte(signingKey)
	if conf.Token != nil {
		if conf.Token.Issuer != "" {
			issuerConfig.Issuer = conf.Token.Issuer
		}
		var err error
		if issuerConfig.AccessTTL, err = config.ParseDuration(conf.Token.AccessTTL, issuerConfig.AccessTTL); err != nil {
			return err
		}
		if issuerConfig.RefreshTTL, err = config.ParseDuration(conf.Token.RefreshTTL, issuerConfig.RefreshTTL); err != nil {
			return err
		}
	}
	issuer, err := token.NewIssuer(issuerConfig, revoker, logger)
	if err != nil {
		return err
	}

	// Pending-factor store and code verifier.
	factorConfig := factor.DefaultStoreConfig()
	verifier := factor.NewTOTPVerifier()
	if conf.Factor != nil {
		if factorConfig.TTL, err = config.ParseDuration(conf.Factor.PendingTTL, factorConfig.TTL); err != nil {
			return err
		}
		if conf.Factor.TOTPSkew > 0 {
			verifier.Skew = uint(conf.Factor.TOTPSkew)
		}
	}
	pending, err := factor.NewPendingStore(logger, factorConfig)
	if err != nil {
		return err
	}
	defer pending.Close()

	// Principal records, identity cache, coherency notifier.
	principalStore := principal.NewInmemStore()
	cache, err := identity.NewCache(principalStore, logger, nil)
	if err != nil {
		return err
	}
	defer cache.Close()
	notifier := identity.NewNotifier(cache, logger)
	registry := principal.NewRegistry(principalStore, notifier, logger)

	authenticator := login.NewAuthenticator(registry, pending, issuer, revoker, verifier, auditManager, logger)

	// Retention sweep for expired credential records.
	retentionInterval, err := config.ParseDuration(conf.RetentionInterval, defaultRetentionInterval)
	if err != nil {
		return err
	}
	go runRetentionSweep(ctx, revoker, retentionInterval, logger)

	address := defaultAddress
	if conf.Listener != nil && conf.Listener.Address != "" {
		address = conf.Listener.Address
	}

	server := &http.Server{
		Addr: address,
		Handler: sessionhttp.Handler(&sessionhttp.HandlerProperties{
			Authenticator: authenticator,
			Issuer:        issuer,
			Cache:         cache,
			Logger:        logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("sessiond server listening", log.String("address", address))
		if conf.Listener != nil && conf.Listener.TLSEnabled {
			errCh <- server.ListenAndServeTLS(conf.Listener.TLSCertFile, conf.Listener.TLSKeyFile)
			return
		}
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", log.Err(err))
		}
	}

	return nil
}

// runRetentionSweep periodically removes expired credential records.
// The sweep is idempotent, so overlapping or repeated runs are safe.
func runRetentionSweep(ctx context.Context, revoker *revocation.Service, interval time.Duration, logger log.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := revoker.CleanupExpired(ctx); err != nil {
				logger.Error("retention sweep failed", log.Err(err))
			}
		}
	}
}
