package transport

import (
	"errors"
	"net/http"

	"github.com/tanpawarit/food-delivery-assistant/agent/commerce"
	contractx "github.com/tanpawarit/food-delivery-assistant/agent/contract"
)

type addToCartPayload struct {
	UserID   string `json:"userId"`
	MenuID   string `json:"menuId"`
	Quantity int    `json:"quantity"`
}

type checkoutPayload struct {
	UserID string `json:"userId"`
}

func (s *server) handleAddToCart(w http.ResponseWriter, r *http.Request) {
	var payload addToCartPayload
	if err := decodeJSON(w, r, s.cfg.MaxBodyBytes, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	identity, ok := s.requireIdentity(w, r, payload.UserID)
	if !ok {
		return
	}

	res, err := s.commerce.AddToCart(r.Context(), commerce.AddItem{
		UserID:   identity,
		MenuID:   payload.MenuID,
		Quantity: payload.Quantity,
	})
	if err != nil {
		respondCommerceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, res)
}

func (s *server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var payload checkoutPayload
	if err := decodeJSON(w, r, s.cfg.MaxBodyBytes, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	identity, ok := s.requireIdentity(w, r, payload.UserID)
	if !ok {
		return
	}

	order, err := s.commerce.Checkout(r.Context(), identity)
	if err != nil {
		respondCommerceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, order)
}

func (s *server) requireIdentity(w http.ResponseWriter, r *http.Request, bodyIdentity string) (string, bool) {
	identity, err := s.identity.resolve(r, bodyIdentity)
	if err != nil {
		respondError(w, http.StatusUnauthorized, err.Error())
		return "", false
	}
	if identity == "" {
		respondError(w, http.StatusUnauthorized, contractx.LoginRequiredMessage)
		return "", false
	}
	return identity, true
}

func respondCommerceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, contractx.ErrValidation):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, commerce.ErrUnknownMenuItem):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, commerce.ErrEmptyCart):
		respondError(w, http.StatusConflict, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "could not complete the request")
	}
}
