package llm

import (
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/food-delivery-assistant/agent/contract"
	openrouterx "github.com/tanpawarit/food-delivery-assistant/pkg/openrouter"
)

const maxTemperature = 2

// Config is the shared model endpoint plus per-agent overrides. A negative
// per-agent temperature means "use the shared one".
type Config struct {
	openrouterx.Config

	RouterModel        string  `envconfig:"ROUTER_MODEL" split_words:"true"`
	HandlerModel       string  `envconfig:"HANDLER_MODEL" split_words:"true"`
	RouterTemperature  float32 `envconfig:"ROUTER_TEMPERATURE" split_words:"true" default:"0"`
	HandlerTemperature float32 `envconfig:"HANDLER_TEMPERATURE" split_words:"true" default:"-1"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: openrouter api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contractx.ErrValidation)
	}
	for name, t := range map[string]float32{
		"temperature":         c.Temperature,
		"router temperature":  c.RouterTemperature,
		"handler temperature": c.HandlerTemperature,
	} {
		if t > maxTemperature {
			return fmt.Errorf("%w: %s must not exceed %d", contractx.ErrValidation, name, maxTemperature)
		}
	}
	if c.Temperature < 0 {
		return fmt.Errorf("%w: temperature must not be negative", contractx.ErrValidation)
	}
	return nil
}

// OpenRouterFor returns the model config used by agentType.
func (c Config) OpenRouterFor(agentType contractx.AgentType) openrouterx.Config {
	out := c.Config
	out.BaseURL = strings.TrimSpace(out.BaseURL)
	out.APIKey = strings.TrimSpace(out.APIKey)
	out.Model = strings.TrimSpace(out.Model)
	out.SiteURL = strings.TrimSpace(out.SiteURL)
	out.SiteName = strings.TrimSpace(out.SiteName)
	if c.MaxCompletionToken != nil {
		n := *c.MaxCompletionToken
		out.MaxCompletionToken = &n
	}

	model, temp := "", float32(-1)
	switch agentType {
	case contractx.AgentTypeRouter:
		model, temp = c.RouterModel, c.RouterTemperature
	case contractx.AgentTypeHandler:
		model, temp = c.HandlerModel, c.HandlerTemperature
	}
	if v := strings.TrimSpace(model); v != "" {
		out.Model = v
	}
	if temp >= 0 {
		out.Temperature = temp
	}
	return out
}
