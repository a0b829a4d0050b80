package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/MelvinVerLia/SiLaporRT-sub001/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var errDown = errors.New("db down")

// memStore is an in-memory MessageStore.
type memStore struct {
	mu       sync.Mutex
	seq      int
	messages []domain.Message
	down     bool
	delay    time.Duration
	appends  int
}

func (s *memStore) setDown(v bool) {
	s.mu.Lock()
	s.down = v
	s.mu.Unlock()
}

func (s *memStore) Append(ctx context.Context, m domain.NewMessage) (*domain.Message, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appends++
	if s.down {
		return nil, errDown
	}
	s.seq++
	msg := domain.Message{
		ID:             fmt.Sprintf("m%d", s.seq),
		ConversationID: m.ConversationID,
		AuthorID:       m.AuthorID,
		Body:           m.Body,
		CreatedAt:      time.Unix(int64(s.seq), 0).UTC(),
	}
	s.messages = append(s.messages, msg)
	return &msg, nil
}

func (s *memStore) MarkRead(ctx context.Context, conversationID, messageID, readerID string) (domain.ReadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return 0, errDown
	}
	for i := range s.messages {
		m := &s.messages[i]
		if m.ID != messageID || m.ConversationID != conversationID {
			continue
		}
		switch {
		case m.AuthorID == readerID:
			return domain.ReadOwnMessage, nil
		case m.IsRead:
			return domain.ReadAlreadyRead, nil
		}
		m.IsRead = true
		return domain.ReadMarked, nil
	}
	return 0, domain.ErrMessageNotFound
}

func (s *memStore) History(ctx context.Context, conversationID, after string, limit int) ([]domain.Message, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return nil, "", errDown
	}
	var out []domain.Message
	for _, m := range s.messages {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	if len(out) > limit {
		return out[:limit], out[limit-1].ID, nil
	}
	return out, "", nil
}

func (s *memStore) all() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Message(nil), s.messages...)
}

func (s *memStore) appendCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appends
}

// memDirectory implements ConversationRepository over fixed reports.
type memDirectory struct {
	mu       sync.Mutex
	reports  map[string]domain.Participants // by report id
	byConv   map[string]string              // conversation id -> report id
	down     bool
	resolved int
}

func newMemDirectory() *memDirectory {
	return &memDirectory{reports: map[string]domain.Participants{}, byConv: map[string]string{}}
}

func (d *memDirectory) addConversation(convID, reportID, citizen, admin string, active bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reports[reportID] = domain.Participants{ReportID: reportID, CitizenID: citizen, AdminID: admin, Active: active}
	if convID != "" {
		d.byConv[convID] = reportID
	}
}

func (d *memDirectory) Participants(ctx context.Context, conversationID string) (domain.Participants, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.down {
		return domain.Participants{}, errDown
	}
	reportID, ok := d.byConv[conversationID]
	if !ok {
		return domain.Participants{}, domain.ErrConversationNotFound
	}
	p := d.reports[reportID]
	p.ConversationID = conversationID
	return p, nil
}

func (d *memDirectory) ReportParticipants(ctx context.Context, reportID string) (domain.Participants, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.reports[reportID]
	if !ok {
		return domain.Participants{}, domain.ErrReportNotFound
	}
	return p, nil
}

func (d *memDirectory) ResolveForReport(ctx context.Context, reportID string) (*domain.Conversation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for conv, rep := range d.byConv {
		if rep == reportID {
			return &domain.Conversation{ID: conv, ReportID: reportID}, nil
		}
	}
	d.resolved++
	conv := "conv-" + reportID
	d.byConv[conv] = reportID
	return &domain.Conversation{ID: conv, ReportID: reportID}, nil
}

type pushCall struct {
	UserID, Title, Body, ClickURL string
}

// recordingPush counts Dispatch calls.
type recordingPush struct {
	mu    sync.Mutex
	calls []pushCall
	delay time.Duration
}

func (p *recordingPush) Dispatch(ctx context.Context, userID, title, body, clickURL string) {
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	p.mu.Lock()
	p.calls = append(p.calls, pushCall{userID, title, body, clickURL})
	p.mu.Unlock()
}

func (p *recordingPush) Calls() []pushCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]pushCall(nil), p.calls...)
}
