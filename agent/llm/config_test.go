package llm

import (
	"errors"
	"testing"

	contractx "github.com/tanpawarit/food-delivery-assistant/agent/contract"
	openrouterx "github.com/tanpawarit/food-delivery-assistant/pkg/openrouter"
)

func baseConfig() Config {
	maxTokens := 512
	return Config{
		Config: openrouterx.Config{
			APIKey:             " key ",
			Model:              "base/model",
			MaxCompletionToken: &maxTokens,
			Temperature:        0.5,
		},
		RouterTemperature:  0,
		HandlerTemperature: -1,
	}
}

func TestOpenRouterForAppliesAgentOverrides(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.RouterModel = "router/model"

	router := cfg.OpenRouterFor(contractx.AgentTypeRouter)
	if router.Model != "router/model" || router.Temperature != 0 || router.APIKey != "key" {
		t.Fatalf("router config = %+v", router)
	}

	handler := cfg.OpenRouterFor(contractx.AgentTypeHandler)
	if handler.Model != "base/model" || handler.Temperature != 0.5 {
		t.Fatalf("handler config = %+v", handler)
	}
	if handler.MaxCompletionToken == nil || *handler.MaxCompletionToken != 512 {
		t.Fatalf("max completion token = %v", handler.MaxCompletionToken)
	}
}

func TestOpenRouterForCopiesTokenLimit(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	out := cfg.OpenRouterFor(contractx.AgentTypeHandler)
	*out.MaxCompletionToken = 1

	if *cfg.MaxCompletionToken != 512 {
		t.Fatal("derived config must not alias the shared token limit")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	if err := baseConfig().Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	noKey := baseConfig()
	noKey.APIKey = ""
	noModel := baseConfig()
	noModel.Model = " "
	hot := baseConfig()
	hot.RouterTemperature = 2.5
	negative := baseConfig()
	negative.Temperature = -0.1

	for name, cfg := range map[string]Config{"no key": noKey, "no model": noModel, "hot": hot, "negative": negative} {
		if err := cfg.Validate(); !errors.Is(err, contractx.ErrValidation) {
			t.Fatalf("%s: Validate() error = %v, want ErrValidation", name, err)
		}
	}
}
