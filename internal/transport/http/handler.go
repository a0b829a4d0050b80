package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MelvinVerLia/SiLaporRT-sub001/internal/domain"
	httpmw "github.com/MelvinVerLia/SiLaporRT-sub001/internal/transport/http/middleware"
)

type ConversationService interface {
	Resolve(ctx context.Context, reportID, userID string) (*domain.Conversation, error)
	History(ctx context.Context, conversationID, userID, after string, limit int) ([]domain.Message, string, error)
}

type PushService interface {
	Get(ctx context.Context, userID string) (*domain.PushSubscription, error)
	Subscribe(ctx context.Context, userID string, endpoint json.RawMessage) (*domain.PushSubscription, error)
	Toggle(ctx context.Context, userID string, enabled bool) (*domain.PushSubscription, error)
}

const maxBodyBytes = 16 << 10

type Handler struct {
	conversations ConversationService
	push          PushService
	log           *slog.Logger
}

func NewHandler(conversations ConversationService, push PushService, log *slog.Logger) *Handler {
	return &Handler{conversations: conversations, push: push, log: log}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to statuses; anything unknown is a 500 and
// is logged.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, msg := http.StatusInternalServerError, "internal error"
	switch {
	case errors.Is(err, domain.ErrNotParticipant):
		status, msg = http.StatusForbidden, "not a participant"
	case errors.Is(err, domain.ErrValidation):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrConversationNotFound),
		errors.Is(err, domain.ErrReportNotFound),
		errors.Is(err, domain.ErrSubscriptionNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrStorageUnavailable):
		status, msg = http.StatusServiceUnavailable, "storage unavailable"
	}
	if status >= 500 {
		h.log.ErrorContext(r.Context(), "handler."+op, "err", err)
	}
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// GET /conversations/{id}/messages?after=&limit=
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
			return
		}
		limit = n
	}

	msgs, next, err := h.conversations.History(r.Context(),
		chi.URLParam(r, "id"), httpmw.UserIDFromCtx(r.Context()), r.URL.Query().Get("after"), limit)
	if err != nil {
		h.writeError(w, r, "GetMessages", err)
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	writeJSON(w, http.StatusOK, MessagesResponse{Messages: msgs, Next: next})
}

// POST /reports/{reportId}/conversation
func (h *Handler) ResolveConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.conversations.Resolve(r.Context(), chi.URLParam(r, "reportId"), httpmw.UserIDFromCtx(r.Context()))
	if err != nil {
		h.writeError(w, r, "ResolveConversation", err)
		return
	}
	writeJSON(w, http.StatusOK, ConversationResponse{ID: conv.ID, ReportID: conv.ReportID, CreatedAt: conv.CreatedAt})
}

// GET /push/subscription
func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := h.push.Get(r.Context(), httpmw.UserIDFromCtx(r.Context()))
	if err != nil {
		h.writeError(w, r, "GetSubscription", err)
		return
	}
	writeJSON(w, http.StatusOK, subscriptionResponse(sub))
}

// PUT /push/subscription with the browser's PushSubscription JSON as body.
func (h *Handler) PutSubscription(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
		return
	}
	sub, err := h.push.Subscribe(r.Context(), httpmw.UserIDFromCtx(r.Context()), json.RawMessage(body))
	if err != nil {
		h.writeError(w, r, "PutSubscription", err)
		return
	}
	writeJSON(w, http.StatusOK, subscriptionResponse(sub))
}

// PATCH /push/subscription {"enabled": bool}
func (h *Handler) PatchSubscription(w http.ResponseWriter, r *http.Request) {
	var req ToggleRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil || req.Enabled == nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return
	}
	sub, err := h.push.Toggle(r.Context(), httpmw.UserIDFromCtx(r.Context()), *req.Enabled)
	if err != nil {
		h.writeError(w, r, "PatchSubscription", err)
		return
	}
	writeJSON(w, http.StatusOK, subscriptionResponse(sub))
}
