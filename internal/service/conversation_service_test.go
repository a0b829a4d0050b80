package service

import (
	"context"
	"errors"
	"testing"

	"github.com/MelvinVerLia/SiLaporRT-sub001/internal/domain"
)

func TestConversationService_ResolveIsLazyAndStable(t *testing.T) {
	dir := newMemDirectory()
	dir.addConversation("", "r1", "u-cit", "u-adm", true)
	svc := NewConversationService(dir, &memStore{}, discardLogger())

	first, err := svc.Resolve(context.Background(), "r1", "u-cit")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	second, err := svc.Resolve(context.Background(), "r1", "u-adm")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if first.ID != second.ID || first.ReportID != "r1" {
		t.Fatalf("expected the same conversation, got %+v and %+v", first, second)
	}
	if dir.resolved != 1 {
		t.Fatalf("conversation created %d times", dir.resolved)
	}
}

func TestConversationService_ResolveRejectsOutsiders(t *testing.T) {
	dir := newMemDirectory()
	dir.addConversation("", "r1", "u-cit", "", true)
	svc := NewConversationService(dir, &memStore{}, discardLogger())

	if _, err := svc.Resolve(context.Background(), "r1", "u-other"); !errors.Is(err, domain.ErrNotParticipant) {
		t.Fatalf("want ErrNotParticipant, got %v", err)
	}
	if _, err := svc.Resolve(context.Background(), "missing", "u-cit"); !errors.Is(err, domain.ErrReportNotFound) {
		t.Fatalf("want ErrReportNotFound, got %v", err)
	}
}

func TestConversationService_HistoryClampsLimit(t *testing.T) {
	dir := newMemDirectory()
	dir.addConversation("c1", "r1", "u-cit", "u-adm", true)
	store := &memStore{}
	for i := 0; i < 3; i++ {
		if _, err := store.Append(context.Background(), domain.NewMessage{ConversationID: "c1", AuthorID: "u-cit", Body: "x"}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	svc := NewConversationService(dir, store, discardLogger())

	msgs, next, err := svc.History(context.Background(), "c1", "u-adm", "", 2)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(msgs) != 2 || next == "" {
		t.Fatalf("page: %d messages, next=%q", len(msgs), next)
	}

	msgs, _, err = svc.History(context.Background(), "c1", "u-adm", "", 0)
	if err != nil || len(msgs) != 3 {
		t.Fatalf("default limit: %d messages (%v)", len(msgs), err)
	}

	if _, _, err := svc.History(context.Background(), "c1", "u-x", "", 10); !errors.Is(err, domain.ErrNotParticipant) {
		t.Fatalf("want ErrNotParticipant, got %v", err)
	}
}
