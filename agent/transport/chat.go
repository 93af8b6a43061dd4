package transport

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"github.com/tanpawarit/food-delivery-assistant/agent/agents/chat"
	contractx "github.com/tanpawarit/food-delivery-assistant/agent/contract"
)

type chatPayload struct {
	Query   string           `json:"query"`
	UserID  string           `json:"userId"`
	History []contractx.Turn `json:"history"`
}

func (s *server) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload chatPayload
	if err := decodeJSON(w, r, s.cfg.MaxBodyBytes, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	identity, err := s.identity.resolve(r, payload.UserID)
	if err != nil {
		respondError(w, http.StatusUnauthorized, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	stream := &textStream{w: w, flusher: flusher}
	res, err := s.chat.Chat(r.Context(), contractx.ChatRequest{
		Query:    payload.Query,
		Identity: identity,
		History:  payload.History,
		Origin:   origin(r),
	}, stream)
	if err != nil {
		if errors.Is(err, chat.ErrInvalidQuery) {
			respondError(w, http.StatusBadRequest, "query is required")
			return
		}
		respondError(w, http.StatusInternalServerError, "chat failed")
		return
	}

	log.Debug().
		Str("request_id", middleware.GetReqID(r.Context())).
		Int("fragments", res.Fragments).
		Bool("partial", res.Partial).
		Msg("http: chat streamed")
}

// textStream writes fragments as a chunked text/plain body. Headers are sent
// with the first fragment so validation errors can still use a status code.
type textStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func (t *textStream) Send(f contractx.Fragment) error {
	if !t.started {
		h := t.w.Header()
		h.Set("Content-Type", "text/plain; charset=utf-8")
		h.Set("Cache-Control", "no-cache")
		h.Set("X-Content-Type-Options", "nosniff")
		t.w.WriteHeader(http.StatusOK)
		t.started = true
	}
	if f.Delta != "" {
		if _, err := t.w.Write([]byte(f.Delta)); err != nil {
			return err
		}
	}
	t.flusher.Flush()
	return nil
}
