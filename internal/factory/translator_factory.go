package factory

import (
	"context"

	"github.com/mikey/support-mailer/internal/adapters/translate"
	"github.com/mikey/support-mailer/internal/config"
	"github.com/mikey/support-mailer/internal/core"
	"go.uber.org/zap"
)

// TranslatorFactory creates the translation client
type TranslatorFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewTranslatorFactory creates a new translator factory
func NewTranslatorFactory(cfg *config.Config, logger *zap.Logger) *TranslatorFactory {
	return &TranslatorFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateTranslator creates a translator, or nil when translation is disabled
// or unconfigured. Credentials come from the settings table first, config
// second. A nil translator stores messages untranslated.
func (f *TranslatorFactory) CreateTranslator(st core.Store) core.Translator {
	if !f.cfg.GetBool("translate.enabled") {
		return nil
	}

	ctx := context.Background()
	appID := setting(ctx, st, "translate_app_id", f.cfg.GetString("translate.app_id"))
	secret := setting(ctx, st, "translate_secret", f.cfg.GetString("translate.secret"))
	if appID == "" || secret == "" {
		f.logger.Warn("Translation enabled but credentials missing, translation disabled")
		return nil
	}

	return translate.NewBaiduTranslator(
		appID,
		secret,
		f.cfg.GetString("translate.endpoint"),
		f.logger,
	)
}
