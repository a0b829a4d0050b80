package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MelvinVerLia/SiLaporRT-sub001/internal/domain"
)

type tokenMap map[string]string

func (m tokenMap) UserID(token string) (string, error) {
	if uid, ok := m[token]; ok {
		return uid, nil
	}
	return "", errors.New("bad token")
}

type stubConversations struct {
	lastAfter string
	lastLimit int
}

func (s *stubConversations) Resolve(ctx context.Context, reportID, userID string) (*domain.Conversation, error) {
	switch {
	case reportID == "missing":
		return nil, domain.ErrReportNotFound
	case userID != "u-cit":
		return nil, domain.ErrNotParticipant
	}
	return &domain.Conversation{ID: "c1", ReportID: reportID, CreatedAt: time.Unix(0, 0).UTC()}, nil
}

func (s *stubConversations) History(ctx context.Context, conversationID, userID, after string, limit int) ([]domain.Message, string, error) {
	s.lastAfter, s.lastLimit = after, limit
	switch {
	case after == "broken":
		return nil, "", errors.New("connection reset")
	case after == "bad":
		return nil, "", domain.ErrValidation
	case userID != "u-cit":
		return nil, "", domain.ErrNotParticipant
	}
	return []domain.Message{{ID: "m1", ConversationID: conversationID, AuthorID: "u-adm", Body: "halo"}}, "next-cursor", nil
}

type stubPush struct {
	sub *domain.PushSubscription
}

func (s *stubPush) Get(ctx context.Context, userID string) (*domain.PushSubscription, error) {
	if s.sub == nil {
		return nil, domain.ErrSubscriptionNotFound
	}
	return s.sub, nil
}

func (s *stubPush) Subscribe(ctx context.Context, userID string, endpoint json.RawMessage) (*domain.PushSubscription, error) {
	if !json.Valid(endpoint) {
		return nil, domain.ErrValidation
	}
	s.sub = &domain.PushSubscription{UserID: userID, Endpoint: endpoint, Enabled: true}
	return s.sub, nil
}

func (s *stubPush) Toggle(ctx context.Context, userID string, enabled bool) (*domain.PushSubscription, error) {
	if s.sub == nil {
		return nil, domain.ErrSubscriptionNotFound
	}
	s.sub.Enabled = enabled
	return s.sub, nil
}

func newTestRouter() (http.Handler, *stubConversations, *stubPush) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	convs := &stubConversations{}
	push := &stubPush{}
	h := NewHandler(convs, push, log)
	r := NewRouter(RouterDeps{
		Handler:  h,
		Verifier: tokenMap{"tok-cit": "u-cit", "tok-adm": "u-adm"},
		Log:      log,
	})
	return r, convs, push
}

func do(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_RequiresBearerToken(t *testing.T) {
	r, _, _ := newTestRouter()
	for _, tok := range []string{"", "forged"} {
		if rec := do(t, r, http.MethodGet, "/conversations/c1/messages", tok, ""); rec.Code != http.StatusUnauthorized {
			t.Fatalf("token %q: want 401, got %d", tok, rec.Code)
		}
	}
	if rec := do(t, r, http.MethodGet, "/healthz", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
}

func TestGetMessages(t *testing.T) {
	r, convs, _ := newTestRouter()

	rec := do(t, r, http.MethodGet, "/conversations/c1/messages?after=abc&limit=20", "tok-cit", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d body=%s", rec.Code, rec.Body)
	}
	var resp MessagesResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Messages) != 1 || resp.Messages[0].ID != "m1" || resp.Next != "next-cursor" {
		t.Fatalf("response: %+v", resp)
	}
	if convs.lastAfter != "abc" || convs.lastLimit != 20 {
		t.Fatalf("params not forwarded: after=%q limit=%d", convs.lastAfter, convs.lastLimit)
	}
}

func TestGetMessages_ErrorMapping(t *testing.T) {
	r, _, _ := newTestRouter()
	tests := []struct {
		name  string
		path  string
		token string
		want  int
	}{
		{"outsider", "/conversations/c1/messages", "tok-adm", http.StatusForbidden},
		{"bad cursor", "/conversations/c1/messages?after=bad", "tok-cit", http.StatusBadRequest},
		{"bad limit", "/conversations/c1/messages?limit=x", "tok-cit", http.StatusBadRequest},
		{"storage", "/conversations/c1/messages?after=broken", "tok-cit", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, r, http.MethodGet, tt.path, tt.token, ""); rec.Code != tt.want {
				t.Fatalf("want %d, got %d (%s)", tt.want, rec.Code, rec.Body)
			}
		})
	}
}

func TestResolveConversation(t *testing.T) {
	r, _, _ := newTestRouter()

	rec := do(t, r, http.MethodPost, "/reports/r1/conversation", "tok-cit", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	var conv ConversationResponse
	if err := json.NewDecoder(rec.Body).Decode(&conv); err != nil || conv.ID != "c1" || conv.ReportID != "r1" {
		t.Fatalf("conversation: %+v (%v)", conv, err)
	}

	if rec := do(t, r, http.MethodPost, "/reports/missing/conversation", "tok-cit", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("missing report: %d", rec.Code)
	}
	if rec := do(t, r, http.MethodPost, "/reports/r1/conversation", "tok-adm", ""); rec.Code != http.StatusForbidden {
		t.Fatalf("outsider: %d", rec.Code)
	}
}

func TestPushSubscriptionLifecycle(t *testing.T) {
	r, _, push := newTestRouter()

	if rec := do(t, r, http.MethodGet, "/push/subscription", "tok-cit", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("get before subscribe: %d", rec.Code)
	}
	if rec := do(t, r, http.MethodPatch, "/push/subscription", "tok-cit", `{"enabled":true}`); rec.Code != http.StatusNotFound {
		t.Fatalf("toggle before subscribe: %d", rec.Code)
	}

	endpoint := `{"endpoint":"https://push.example/x","keys":{"p256dh":"k","auth":"a"}}`
	if rec := do(t, r, http.MethodPut, "/push/subscription", "tok-cit", endpoint); rec.Code != http.StatusOK {
		t.Fatalf("subscribe: %d %s", rec.Code, rec.Body)
	}

	rec := do(t, r, http.MethodPatch, "/push/subscription", "tok-cit", `{"enabled":false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("toggle: %d", rec.Code)
	}
	var sub SubscriptionResponse
	if err := json.NewDecoder(rec.Body).Decode(&sub); err != nil || sub.Enabled {
		t.Fatalf("toggle response: %+v (%v)", sub, err)
	}
	if string(push.sub.Endpoint) != endpoint {
		t.Fatalf("endpoint changed by toggle: %s", push.sub.Endpoint)
	}
	if strings.Contains(rec.Body.String(), "p256dh") {
		t.Fatalf("response must not echo subscription keys")
	}

	if rec := do(t, r, http.MethodPatch, "/push/subscription", "tok-cit", `{}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing enabled flag: %d", rec.Code)
	}
}
