package factory

import (
	"context"

	"github.com/mikey/support-mailer/internal/adapters/llm"
	"github.com/mikey/support-mailer/internal/config"
	"github.com/mikey/support-mailer/internal/core"
	"go.uber.org/zap"
)

// LLMFactory creates LLM clients
type LLMFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewLLMFactory creates a new LLM factory
func NewLLMFactory(cfg *config.Config, logger *zap.Logger) *LLMFactory {
	return &LLMFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateLLMClient creates an LLM client, or nil when the semantic stage is
// disabled or unconfigured. Credentials come from the settings table first,
// config file second, so operators can rotate them without a restart of the
// configuration layer. A nil client downgrades classification to the keyword
// and default stages.
func (f *LLMFactory) CreateLLMClient(st core.Store) core.LLMClient {
	if !f.cfg.GetBool("llm.enabled") {
		return nil
	}

	ctx := context.Background()
	apiKey := setting(ctx, st, "ai_api_key", f.cfg.GetString("llm.api_key"))
	if apiKey == "" {
		f.logger.Warn("LLM enabled but no API key configured, semantic stage disabled")
		return nil
	}

	return llm.NewClient(
		apiKey,
		setting(ctx, st, "ai_base_url", f.cfg.GetString("llm.base_url")),
		setting(ctx, st, "ai_model_name", f.cfg.GetString("llm.model_name")),
		f.logger,
	)
}

// setting reads a settings-table value, with the config value as fallback.
func setting(ctx context.Context, st core.Store, key, fallback string) string {
	value, err := st.GetSetting(ctx, key, fallback)
	if err != nil {
		return fallback
	}
	return value
}
