package llm

import (
	"fmt"
	"strings"

	contractx "github.com/hanbit-dev/kiosk-agent/agent/contract"
	openrouterx "github.com/hanbit-dev/kiosk-agent/pkg/openrouter"
)

// FromOpenRouter builds the production chat model from OpenRouter settings.
func FromOpenRouter(cfg openrouterx.Config) (*Model, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: openrouter api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("%w: model name is required", contractx.ErrValidation)
	}

	client := openrouterx.NewClient(cfg)
	if client == nil {
		return nil, fmt.Errorf("%w: failed to build openrouter client", contractx.ErrValidation)
	}
	return NewModel(client, cfg.Model, cfg.Temperature, cfg.MaxCompletionToken)
}
