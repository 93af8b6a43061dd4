package handler

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	contractx "github.com/tanpawarit/food-delivery-assistant/agent/contract"
	llmx "github.com/tanpawarit/food-delivery-assistant/agent/llm"
	promptx "github.com/tanpawarit/food-delivery-assistant/agent/prompt"
	"github.com/tanpawarit/food-delivery-assistant/agent/sqlgate"
)

// registryImpl holds one field per declared handler. Lookups switch over the
// closed route set, so an undeclared route is reported rather than ignored.
type registryImpl struct {
	classifier  contractx.Classifier
	restaurants contractx.Handler
	menu        contractx.Handler
	users       contractx.Handler
	carts       contractx.Handler
	payments    contractx.Handler
	discounts   contractx.Handler
}

func (r *registryImpl) Classifier() contractx.Classifier {
	return r.classifier
}

func (r *registryImpl) Handler(route contractx.Route) (contractx.Handler, bool) {
	switch route {
	case contractx.RouteRestaurants:
		return r.restaurants, true
	case contractx.RouteMenu:
		return r.menu, true
	case contractx.RouteUsers:
		return r.users, true
	case contractx.RouteCarts:
		return r.carts, true
	case contractx.RoutePayments:
		return r.payments, true
	case contractx.RouteDiscounts:
		return r.discounts, true
	default:
		return nil, false
	}
}

func NewRegistry(ctx context.Context, cfg llmx.Config, gate contractx.QueryGate, catalog sqlgate.Catalog) (contractx.Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	routerModelCfg := cfg.OpenRouterFor(contractx.AgentTypeRouter)
	routerModel, err := routerModelCfg.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: create router model: %v", contractx.ErrModelInvoke, err)
	}
	handlerModelCfg := cfg.OpenRouterFor(contractx.AgentTypeHandler)
	handlerModel, err := handlerModelCfg.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: create handler model: %v", contractx.ErrModelInvoke, err)
	}

	return NewRegistryWithModels(ctx, routerModel, handlerModel, gate, catalog, promptx.LoadPromptSet())
}

// NewRegistryWithModels builds the registry over already constructed models.
func NewRegistryWithModels(
	ctx context.Context,
	routerModel einomodel.BaseChatModel,
	handlerModel einomodel.ToolCallingChatModel,
	gate contractx.QueryGate,
	catalog sqlgate.Catalog,
	prompts promptx.PromptSet,
) (contractx.Registry, error) {
	if gate == nil {
		return nil, fmt.Errorf("%w: query gate is required", contractx.ErrValidation)
	}

	classifier, err := newClassifier(ctx, routerModel, prompts.Router)
	if err != nil {
		return nil, err
	}

	handlers := make(map[contractx.Route]contractx.Handler, len(contractx.HandlerRoutes))
	for _, route := range contractx.HandlerRoutes {
		h, err := newHandler(ctx, route, handlerModel, gate, catalog, prompts.ForRoute(route), prompts.Answer)
		if err != nil {
			return nil, err
		}
		handlers[route] = h
	}

	return &registryImpl{
		classifier:  classifier,
		restaurants: handlers[contractx.RouteRestaurants],
		menu:        handlers[contractx.RouteMenu],
		users:       handlers[contractx.RouteUsers],
		carts:       handlers[contractx.RouteCarts],
		payments:    handlers[contractx.RoutePayments],
		discounts:   handlers[contractx.RouteDiscounts],
	}, nil
}
