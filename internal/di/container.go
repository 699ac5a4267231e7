package di

import (
	"context"
	"time"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/support-mailer/internal/adapters/httpapi"
	"github.com/mikey/support-mailer/internal/adapters/imapwire"
	"github.com/mikey/support-mailer/internal/adapters/mailparse"
	"github.com/mikey/support-mailer/internal/adapters/smtpout"
	"github.com/mikey/support-mailer/internal/adapters/store"
	"github.com/mikey/support-mailer/internal/config"
	"github.com/mikey/support-mailer/internal/core"
	"github.com/mikey/support-mailer/internal/factory"
	"github.com/mikey/support-mailer/internal/langdetect"
	"github.com/mikey/support-mailer/internal/logging"
	"github.com/mikey/support-mailer/internal/poller"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// Register factories
	if err := container.Provide(factory.NewStoreFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewLLMFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewTranslatorFactory); err != nil {
		return nil, err
	}

	// Register store
	if err := container.Provide(func(f *factory.StoreFactory) (*store.SQLStore, error) {
		return f.CreateStore()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(s *store.SQLStore) core.Store {
		return s
	}); err != nil {
		return nil, err
	}

	// Register LLM client and translator
	if err := container.Provide(func(f *factory.LLMFactory, st core.Store) core.LLMClient {
		return f.CreateLLMClient(st)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.TranslatorFactory, st core.Store) core.Translator {
		return f.CreateTranslator(st)
	}); err != nil {
		return nil, err
	}

	// Register mailbox dialer
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) core.MailboxDial {
		insecure := cfg.GetBool("mail.insecure_skip_verify")
		return func(host string, port int) core.MailboxClient {
			return imapwire.NewClient(host, port, insecure, logger)
		}
	}); err != nil {
		return nil, err
	}

	// Register message decoder and sender
	if err := container.Provide(func(logger *zap.Logger) core.MessageDecoder {
		return mailparse.NewDecoder(logger)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(logger *zap.Logger) core.MessageSender {
		return smtpout.NewSender(logger)
	}); err != nil {
		return nil, err
	}

	// Register language detector
	if err := container.Provide(func(cfg *config.Config) core.LanguageDetector {
		return langdetect.NewDetector(cfg.GetFloat64("langdetect.min_confidence"))
	}); err != nil {
		return nil, err
	}

	// Register the pipeline service
	if err := container.Provide(func(
		st core.Store,
		dial core.MailboxDial,
		decoder core.MessageDecoder,
		sender core.MessageSender,
		llmClient core.LLMClient,
		translator core.Translator,
		detector core.LanguageDetector,
		cfg *config.Config,
		logger *zap.Logger,
	) *core.PipelineService {
		// Operator-editable values live in the settings table; the config
		// file supplies the fallback.
		ctx := context.Background()
		lookup := func(key, fallback string) string {
			if v, err := st.GetSetting(ctx, key, fallback); err == nil {
				return v
			}
			return fallback
		}
		company := core.CompanyInfo{
			Name:  lookup("company_name", cfg.GetString("company.name")),
			Email: lookup("company_email", cfg.GetString("company.email")),
			Phone: lookup("company_phone", cfg.GetString("company.phone")),
		}
		targetLang := lookup("translate_target_lang", cfg.GetString("translate.target_lang"))
		return core.NewPipelineService(
			st, dial, decoder, sender, llmClient, translator, detector,
			company, targetLang, logger,
		)
	}); err != nil {
		return nil, err
	}

	// Register the poller
	if err := container.Provide(func(svc *core.PipelineService, st core.Store, cfg *config.Config, logger *zap.Logger) (*poller.Poller, error) {
		raw := cfg.GetString("poller.interval")
		if v, err := st.GetSetting(context.Background(), "poll_interval", raw); err == nil {
			raw = v
		}
		interval, err := time.ParseDuration(raw)
		if err != nil || interval <= 0 {
			interval = 5 * time.Minute
		}
		return poller.New(svc, interval, logger), nil
	}); err != nil {
		return nil, err
	}

	// Register the HTTP API server
	if err := container.Provide(func(svc *core.PipelineService, cfg *config.Config, logger *zap.Logger) *httpapi.Server {
		return httpapi.NewServer(cfg.GetString("server.listen_address"), svc, logger)
	}); err != nil {
		return nil, err
	}

	return container, nil
}
