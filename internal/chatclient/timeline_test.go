package chatclient

import (
	"testing"
	"time"

	"github.com/MelvinVerLia/SiLaporRT-sub001/internal/domain"
	"github.com/MelvinVerLia/SiLaporRT-sub001/internal/realtime"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func msg(id, author, body string, at time.Time) domain.Message {
	return domain.Message{ID: id, ConversationID: "c1", AuthorID: author, Body: body, CreatedAt: at}
}

func ids(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestTimeline_ConfirmReplacesInPlace(t *testing.T) {
	tl := NewTimeline()
	tl.Confirmed("", msg("m1", "u-adm", "halo", t0))
	tl.LocalSent("p1", "u-cit", "jalan rusak", t0.Add(time.Minute))
	tl.Confirmed("", msg("m2", "u-adm", "sedang dicek", t0.Add(2*time.Minute)))

	// durable created_at lands before m2 but the bubble keeps its slot
	tl.Confirmed("p1", msg("m3", "u-cit", "jalan rusak", t0.Add(30*time.Second)))

	if got := ids(tl.Entries()); !equal(got, []string{"m1", "m3", "m2"}) {
		t.Fatalf("order: %v", got)
	}
	e, ok := tl.Get("m3")
	if !ok || e.State != StateConfirmed || !e.CreatedAt.Equal(t0.Add(30*time.Second)) {
		t.Fatalf("entry: %+v", e)
	}
	if _, ok := tl.Get("p1"); ok {
		t.Fatalf("provisional id still present")
	}
}

func TestTimeline_RecipientAppendsOnce(t *testing.T) {
	tl := NewTimeline()
	tl.Confirmed("p-other", msg("m1", "u-cit", "hi", t0))
	tl.Confirmed("p-other", msg("m1", "u-cit", "hi", t0))

	if got := ids(tl.Entries()); !equal(got, []string{"m1"}) {
		t.Fatalf("entries: %v", got)
	}
}

func TestTimeline_FailedOnlyFromPending(t *testing.T) {
	tl := NewTimeline()
	tl.LocalSent("p1", "u-cit", "a", t0)
	tl.LocalSent("p2", "u-cit", "b", t0)
	tl.Confirmed("p2", msg("m2", "u-cit", "b", t0))

	tl.Failed("p1", realtime.ReasonStorageUnavailable)
	tl.Failed("m2", realtime.ReasonStorageUnavailable)
	tl.Failed("missing", realtime.ReasonStorageUnavailable)

	e, _ := tl.Get("p1")
	if e.State != StateFailed || e.Reason != realtime.ReasonStorageUnavailable {
		t.Fatalf("p1: %+v", e)
	}
	e, _ = tl.Get("m2")
	if e.State != StateConfirmed {
		t.Fatalf("m2 should stay confirmed: %+v", e)
	}
}

func TestTimeline_LateConfirmUpgradesTimedOut(t *testing.T) {
	tl := NewTimeline()
	tl.LocalSent("p1", "u-cit", "a", t0)
	tl.TimedOut("p1")

	e, _ := tl.Get("p1")
	if e.State != StateFailed || e.Reason != realtime.ReasonTimeout {
		t.Fatalf("timed out: %+v", e)
	}

	tl.Confirmed("p1", msg("m1", "u-cit", "a", t0))
	e, ok := tl.Get("m1")
	if !ok || e.State != StateConfirmed || e.Reason != "" {
		t.Fatalf("upgrade: %+v", e)
	}
	if len(tl.Entries()) != 1 {
		t.Fatalf("expected a single entry")
	}
}

func TestTimeline_HistoryResortsAndKeepsLocal(t *testing.T) {
	tl := NewTimeline()
	tl.Confirmed("", msg("m2", "u-adm", "b", t0.Add(2*time.Minute)))
	tl.Confirmed("", msg("m1", "u-adm", "a", t0))
	tl.Read("m2")
	tl.LocalSent("p1", "u-cit", "draft", t0.Add(-time.Hour))

	tl.HistoryLoaded([]domain.Message{
		msg("m0", "u-cit", "first", t0.Add(-time.Minute)),
		msg("m2", "u-adm", "b", t0.Add(2*time.Minute)),
	})

	if got := ids(tl.Entries()); !equal(got, []string{"m0", "m1", "m2", "p1"}) {
		t.Fatalf("order: %v", got)
	}
	if e, _ := tl.Get("m2"); !e.IsRead {
		t.Fatalf("read flag lost on reload")
	}
	if e, _ := tl.Get("p1"); e.State != StatePending {
		t.Fatalf("local entry: %+v", e)
	}
}

func TestTimeline_ConfirmAfterHistoryDropsProvisional(t *testing.T) {
	tl := NewTimeline()
	tl.LocalSent("p1", "u-cit", "a", t0)
	tl.HistoryLoaded([]domain.Message{msg("m1", "u-cit", "a", t0)})

	tl.Confirmed("p1", msg("m1", "u-cit", "a", t0))

	if got := ids(tl.Entries()); !equal(got, []string{"m1"}) {
		t.Fatalf("entries: %v", got)
	}
}
