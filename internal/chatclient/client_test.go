package chatclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MelvinVerLia/SiLaporRT-sub001/config"
	"github.com/MelvinVerLia/SiLaporRT-sub001/internal/domain"
	"github.com/MelvinVerLia/SiLaporRT-sub001/internal/realtime"
	"github.com/MelvinVerLia/SiLaporRT-sub001/internal/service"
	"github.com/MelvinVerLia/SiLaporRT-sub001/internal/transport/ws"
)

type tokens map[string]string

func (v tokens) UserID(token string) (string, error) {
	if uid, ok := v[token]; ok {
		return uid, nil
	}
	return "", errors.New("bad token")
}

type store struct {
	mu    sync.Mutex
	msgs  []domain.Message
	delay time.Duration
	down  bool
}

func (s *store) Append(ctx context.Context, m domain.NewMessage) (*domain.Message, error) {
	s.mu.Lock()
	delay, down := s.delay, s.down
	s.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if down {
		return nil, errors.New("connection refused")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	msg := domain.Message{
		ID:             fmt.Sprintf("m%d", len(s.msgs)+1),
		ConversationID: m.ConversationID,
		AuthorID:       m.AuthorID,
		Body:           m.Body,
		CreatedAt:      time.Now().UTC(),
	}
	s.msgs = append(s.msgs, msg)
	return &msg, nil
}

func (s *store) MarkRead(ctx context.Context, conversationID, messageID, readerID string) (domain.ReadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.msgs {
		if s.msgs[i].ID != messageID || s.msgs[i].ConversationID != conversationID {
			continue
		}
		if s.msgs[i].AuthorID == readerID {
			return domain.ReadOwnMessage, nil
		}
		if s.msgs[i].IsRead {
			return domain.ReadAlreadyRead, nil
		}
		s.msgs[i].IsRead = true
		return domain.ReadMarked, nil
	}
	return 0, domain.ErrMessageNotFound
}

func (s *store) History(ctx context.Context, conversationID, after string, limit int) ([]domain.Message, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Message, len(s.msgs))
	copy(out, s.msgs)
	return out, "", nil
}

func (s *store) seed(m domain.Message) {
	s.mu.Lock()
	s.msgs = append(s.msgs, m)
	s.mu.Unlock()
}

func (s *store) set(delay time.Duration, down bool) {
	s.mu.Lock()
	s.delay, s.down = delay, down
	s.mu.Unlock()
}

type directory struct{}

func (directory) Participants(ctx context.Context, conversationID string) (domain.Participants, error) {
	if conversationID != "c1" {
		return domain.Participants{}, domain.ErrConversationNotFound
	}
	return domain.Participants{ConversationID: "c1", ReportID: "r1", CitizenID: "u-cit", AdminID: "u-adm", Active: true}, nil
}

type nopPush struct{}

func (nopPush) Dispatch(ctx context.Context, userID, title, body, clickURL string) {}

type harness struct {
	url   string
	store *store
	log   *slog.Logger
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := realtime.NewRegistry()
	st := &store{}
	rec, err := service.NewReconciler(64)
	if err != nil {
		t.Fatalf("reconciler: %v", err)
	}
	coord := service.NewSessionCoordinator(service.CoordinatorConfig{}, service.CoordinatorDeps{
		Registry:   registry,
		Directory:  directory{},
		Store:      st,
		Reconciler: rec,
		Receipts:   service.NewReadReceiptTracker(st, registry, log, nil),
		Typing:     service.NewTypingSignaler(registry, time.Minute, log, nil),
		Push:       nopPush{},
		Log:        log,
	})
	srv := ws.NewServer(coord, tokens{"tok-cit": "u-cit", "tok-adm": "u-adm"}, config.WebSocket{}, nil, log, nil)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", srv.HandleWS)
	hs := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.CloseAll()
		hs.Close()
		_ = coord.Wait(context.Background())
	})
	return &harness{url: "ws" + strings.TrimPrefix(hs.URL, "http") + "/ws", store: st, log: log}
}

func (h *harness) connect(t *testing.T, token, userID string, opts Options) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := Dial(ctx, h.url, token, userID, opts, h.log)
	if err != nil {
		t.Fatalf("dial %s: %v", userID, err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// await drains updates until one of kind arrives.
func await(t *testing.T, c *Client, kind string) Update {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case u := <-c.Updates():
			if u.Kind == kind {
				return u
			}
		case <-timeout:
			t.Fatalf("no %s update", kind)
		}
	}
}

// awaitID drains updates until kind arrives for id.
func awaitID(t *testing.T, c *Client, kind, id string) Update {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case u := <-c.Updates():
			if u.Kind == kind && u.ID == id {
				return u
			}
		case <-timeout:
			t.Fatalf("no %s update for %s", kind, id)
		}
	}
}

func joined(t *testing.T, c *Client) {
	t.Helper()
	if err := c.Join("c1"); err != nil {
		t.Fatalf("join: %v", err)
	}
	await(t, c, realtime.TypeRoomJoined)
}

func TestDial_Unauthorized(t *testing.T) {
	h := newHarness(t)
	_, err := Dial(context.Background(), h.url, "nope", "u-x", Options{}, h.log)
	if err == nil || !strings.Contains(err.Error(), "unauthorized") {
		t.Fatalf("want unauthorized, got %v", err)
	}
}

func TestClient_SendConfirmAndRead(t *testing.T) {
	h := newHarness(t)
	cit := h.connect(t, "tok-cit", "u-cit", Options{})
	adm := h.connect(t, "tok-adm", "u-adm", Options{})
	joined(t, cit)
	joined(t, adm)

	prov, err := cit.Send("c1", "lampu jalan mati")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	entries := cit.Timeline("c1")
	if len(entries) != 1 || entries[0].ID != prov || entries[0].State != StatePending {
		t.Fatalf("optimistic entry: %+v", entries)
	}

	await(t, cit, realtime.TypeMessageConfirmed)
	entries = cit.Timeline("c1")
	if len(entries) != 1 || entries[0].ID != "m1" || entries[0].State != StateConfirmed {
		t.Fatalf("sender timeline: %+v", entries)
	}

	await(t, adm, realtime.TypeMessageConfirmed)
	if got := ids(adm.Timeline("c1")); !equal(got, []string{"m1"}) {
		t.Fatalf("recipient timeline: %v", got)
	}

	// the admin marks it read on delivery; the citizen sees the receipt
	u := await(t, cit, realtime.TypeMessageRead)
	if u.ID != "m1" {
		t.Fatalf("read update: %+v", u)
	}
	if e := cit.Timeline("c1")[0]; !e.IsRead {
		t.Fatalf("read flag not applied: %+v", e)
	}
}

func TestClient_TypingClearsWithoutStopEvent(t *testing.T) {
	h := newHarness(t)
	cit := h.connect(t, "tok-cit", "u-cit", Options{TypingDisplay: 50 * time.Millisecond})
	adm := h.connect(t, "tok-adm", "u-adm", Options{TypingIdle: time.Hour})
	joined(t, cit)
	joined(t, adm)

	adm.Keystroke("c1")
	adm.Keystroke("c1")
	waitFor(t, 2*time.Second, func() bool { return equal(cit.Typers("c1"), []string{"u-adm"}) })

	// no stop-typing is sent within the idle hour; the indicator expires on its own
	time.Sleep(60 * time.Millisecond)
	waitFor(t, 200*time.Millisecond, func() bool { return len(cit.Typers("c1")) == 0 })
}

func TestClient_TypingStopAfterIdle(t *testing.T) {
	h := newHarness(t)
	cit := h.connect(t, "tok-cit", "u-cit", Options{TypingDisplay: time.Hour})
	adm := h.connect(t, "tok-adm", "u-adm", Options{TypingIdle: 30 * time.Millisecond})
	joined(t, cit)
	joined(t, adm)

	adm.Keystroke("c1")
	waitFor(t, 2*time.Second, func() bool { return len(cit.Typers("c1")) == 1 })
	waitFor(t, 2*time.Second, func() bool { return len(cit.Typers("c1")) == 0 })
}

func TestClient_StorageFailureMarksBubble(t *testing.T) {
	h := newHarness(t)
	cit := h.connect(t, "tok-cit", "u-cit", Options{})
	joined(t, cit)
	h.store.set(0, true)

	prov, err := cit.Send("c1", "halo")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	u := await(t, cit, realtime.TypeMessageFailed)
	if u.ID != prov {
		t.Fatalf("failed update: %+v", u)
	}
	e := cit.Timeline("c1")[0]
	if e.State != StateFailed || e.Reason != realtime.ReasonStorageUnavailable {
		t.Fatalf("entry: %+v", e)
	}

	// a resend is a fresh pending entry
	h.store.set(0, false)
	prov2, _ := cit.Send("c1", "halo")
	if prov2 == prov {
		t.Fatalf("resend reused provisional id")
	}
	await(t, cit, realtime.TypeMessageConfirmed)
	entries := cit.Timeline("c1")
	if len(entries) != 2 || entries[0].State != StateFailed || entries[1].ID != "m1" {
		t.Fatalf("entries: %+v", entries)
	}
}

func TestClient_WatchdogThenLateConfirm(t *testing.T) {
	h := newHarness(t)
	cit := h.connect(t, "tok-cit", "u-cit", Options{SendTimeout: 30 * time.Millisecond})
	joined(t, cit)
	h.store.set(200*time.Millisecond, false)

	prov, _ := cit.Send("c1", "halo")
	u := await(t, cit, realtime.ReasonTimeout)
	if u.ID != prov {
		t.Fatalf("timeout update: %+v", u)
	}
	if e := cit.Timeline("c1")[0]; e.State != StateFailed || e.Reason != realtime.ReasonTimeout {
		t.Fatalf("entry: %+v", e)
	}

	await(t, cit, realtime.TypeMessageConfirmed)
	entries := cit.Timeline("c1")
	if len(entries) != 1 || entries[0].ID != "m1" || entries[0].State != StateConfirmed {
		t.Fatalf("late confirm: %+v", entries)
	}
}

func TestClient_LoadHistoryMarksOthersRead(t *testing.T) {
	h := newHarness(t)
	h.store.seed(domain.Message{ID: "m1", ConversationID: "c1", AuthorID: "u-adm", Body: "a", CreatedAt: t0})
	h.store.seed(domain.Message{ID: "m2", ConversationID: "c1", AuthorID: "u-cit", Body: "b", CreatedAt: t0.Add(time.Second)})

	cit := h.connect(t, "tok-cit", "u-cit", Options{})
	adm := h.connect(t, "tok-adm", "u-adm", Options{})
	joined(t, cit)
	joined(t, adm)

	hist, _, _ := h.store.History(context.Background(), "c1", "", 50)
	adm.LoadHistory("c1", hist)
	cit.LoadHistory("c1", hist)

	// each side marks only the other party's message
	awaitID(t, adm, realtime.TypeMessageRead, "m1")
	awaitID(t, cit, realtime.TypeMessageRead, "m2")
	waitFor(t, time.Second, func() bool {
		entries := cit.Timeline("c1")
		return len(entries) == 2 && entries[0].IsRead && entries[1].IsRead
	})
	if got := ids(cit.Timeline("c1")); !equal(got, []string{"m1", "m2"}) {
		t.Fatalf("timeline: %v", got)
	}
}

func TestClient_JoinErrorSurfaces(t *testing.T) {
	h := newHarness(t)
	cit := h.connect(t, "tok-cit", "u-cit", Options{})
	if err := cit.Join("nope"); err != nil {
		t.Fatalf("join: %v", err)
	}
	u := await(t, cit, realtime.TypeError)
	if u.Err == nil || u.Err.Code != realtime.CodeNotFound {
		t.Fatalf("error update: %+v", u)
	}
}
