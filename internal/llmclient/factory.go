// internal/llmclient/factory.go
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/regress-cli/api/schemas"
	"github.com/xkilldash9x/regress-cli/internal/config"
)

// NewClient creates the code generator selected by the configuration.
func NewClient(ctx context.Context, cfg config.GeneratorConfig, logger *zap.Logger) (schemas.CodeGenerator, error) {
	switch cfg.Provider {
	case config.ProviderGemini, "":
		return NewGeminiClient(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported generation provider configured: '%s'. Supported: [%s]", cfg.Provider, config.ProviderGemini)
	}
}
