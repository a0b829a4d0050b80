package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/MelvinVerLia/SiLaporRT-sub001/config"
	"github.com/MelvinVerLia/SiLaporRT-sub001/internal/domain"
)

// Runs against a real server only when POSTGRES_TEST_DSN is set.
func TestMessageRepository_ConcurrentMarkReadFlipsOnce(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}

	ctx := context.Background()
	pool, err := NewPool(ctx, config.Postgres{DSN: dsn, MaxConns: 16})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer pool.Close()
	if err := Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	reportID := "test-" + uuid.NewString()
	if _, err := pool.Exec(ctx, `INSERT INTO reports (id, user_id, admin_id) VALUES ($1, 'u-cit', 'u-adm')`, reportID); err != nil {
		t.Fatalf("seed report: %v", err)
	}
	conv, err := NewConversationRepository(pool).ResolveForReport(ctx, reportID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	repo := NewMessageRepository(pool)
	msg, err := repo.Append(ctx, domain.NewMessage{ConversationID: conv.ID, AuthorID: "u-cit", Body: "lampu mati"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	if res, err := repo.MarkRead(ctx, conv.ID, msg.ID, "u-cit"); err != nil || res != domain.ReadOwnMessage {
		t.Fatalf("own mark: %v (%v)", res, err)
	}

	const tabs = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = map[domain.ReadResult]int{}
	)
	for i := 0; i < tabs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := repo.MarkRead(ctx, conv.ID, msg.ID, "u-adm")
			if err != nil {
				t.Errorf("mark: %v", err)
				return
			}
			mu.Lock()
			results[res]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if results[domain.ReadMarked] != 1 || results[domain.ReadAlreadyRead] != tabs-1 {
		t.Fatalf("want exactly one flip, got %v", results)
	}

	if _, err := repo.MarkRead(ctx, uuid.NewString(), msg.ID, "u-adm"); !errors.Is(err, domain.ErrMessageNotFound) {
		t.Fatalf("foreign conversation: want ErrMessageNotFound, got %v", err)
	}
}
