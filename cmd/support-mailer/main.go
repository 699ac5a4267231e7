package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mikey/support-mailer/internal/adapters/httpapi"
	"github.com/mikey/support-mailer/internal/adapters/store"
	"github.com/mikey/support-mailer/internal/config"
	"github.com/mikey/support-mailer/internal/core"
	"github.com/mikey/support-mailer/internal/di"
	"github.com/mikey/support-mailer/internal/poller"
	"go.uber.org/zap"
)

func main() {
	// Build the dependency injection container
	container, err := di.BuildContainer()
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application function that gets all dependencies injected
func run(
	cfg *config.Config,
	logger *zap.Logger,
	sqlStore *store.SQLStore,
	p *poller.Poller,
	api *httpapi.Server,
) error {
	defer logger.Sync()
	defer sqlStore.Close()

	if err := seedAccount(cfg, sqlStore, logger); err != nil {
		logger.Error("Failed to seed mail account from configuration", zap.Error(err))
		return err
	}

	if cfg.GetBool("poller.enabled") {
		p.Start()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- api.Start()
	}()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Shutting down...", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("HTTP server failed", zap.Error(err))
	}

	p.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := api.Shutdown(ctx); err != nil {
		logger.Error("Failed to shut down HTTP server", zap.Error(err))
	}

	logger.Info("Shutdown complete")
	return nil
}

// seedAccount stores the configured mailbox account so the pipeline can run
// without a prior administrative setup step. No configured address means the
// account table is managed externally.
func seedAccount(cfg *config.Config, sqlStore *store.SQLStore, logger *zap.Logger) error {
	email := cfg.GetString("mail.email")
	if email == "" {
		return nil
	}

	account := &core.MailAccount{
		Email:    email,
		IMAPHost: cfg.GetString("mail.imap_host"),
		IMAPPort: cfg.GetInt("mail.imap_port"),
		SMTPHost: cfg.GetString("mail.smtp_host"),
		SMTPPort: cfg.GetInt("mail.smtp_port"),
		Username: cfg.GetString("mail.username"),
		Password: cfg.GetString("mail.password"),
		UseSSL:   cfg.GetBool("mail.use_ssl"),
	}
	if account.Username == "" {
		account.Username = email
	}

	if err := sqlStore.SaveAccount(context.Background(), account); err != nil {
		return err
	}
	logger.Info("Mail account configured", zap.String("email", email))
	return nil
}
