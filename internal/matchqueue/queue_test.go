package matchqueue

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/kapu/chess-arena/internal/domain"
)

type pairRecorder struct {
	mu    sync.Mutex
	pairs [][2]string
}

func (p *pairRecorder) pair(a, b Entry) {
	p.mu.Lock()
	p.pairs = append(p.pairs, [2]string{a.Player.ID, b.Player.ID})
	p.mu.Unlock()
}

func (p *pairRecorder) all() [][2]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][2]string, len(p.pairs))
	copy(out, p.pairs)
	return out
}

func player(id string) domain.PlayerIdentity {
	return domain.PlayerIdentity{ID: id, Name: "name-" + id}
}

func TestPairsInArrivalOrder(t *testing.T) {
	rec := &pairRecorder{}
	q := New(10, nil, rec.pair)

	for _, id := range []string{"a", "b", "c", "d"} {
		if _, err := q.Enqueue(player(id)); err != nil {
			t.Fatalf("Enqueue(%s): %v", id, err)
		}
	}

	pairs := rec.all()
	if len(pairs) != 2 {
		t.Fatalf("expected 2 pairs, got %d", len(pairs))
	}
	if pairs[0] != [2]string{"a", "b"} || pairs[1] != [2]string{"c", "d"} {
		t.Fatalf("pairing out of arrival order: %v", pairs)
	}
	if q.Waiting() != 0 {
		t.Fatalf("queue should be drained, waiting=%d", q.Waiting())
	}
}

func TestConcurrentEnqueuePairsEveryoneExactlyOnce(t *testing.T) {
	rec := &pairRecorder{}
	q := New(100, nil, rec.pair)

	const players = 40
	var wg sync.WaitGroup
	for i := 0; i < players; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, err := q.Enqueue(player(fmt.Sprintf("p%02d", n))); err != nil {
				t.Errorf("Enqueue: %v", err)
			}
		}(i)
	}
	wg.Wait()

	pairs := rec.all()
	if len(pairs) != players/2 {
		t.Fatalf("got %d pairs, want %d", len(pairs), players/2)
	}
	seen := make(map[string]int)
	for _, p := range pairs {
		seen[p[0]]++
		seen[p[1]]++
	}
	if len(seen) != players {
		t.Fatalf("only %d distinct players paired, want %d", len(seen), players)
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("player %s paired %d times", id, n)
		}
	}
	if q.Waiting() != 0 {
		t.Fatalf("queue not drained, waiting=%d", q.Waiting())
	}
}

func TestDuplicateEnqueueRejected(t *testing.T) {
	rec := &pairRecorder{}
	q := New(10, nil, rec.pair)

	if _, err := q.Enqueue(player("a")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := q.Enqueue(player("a")); !errors.Is(err, ErrDuplicateSession) {
		t.Fatalf("expected ErrDuplicateSession, got %v", err)
	}
}

func TestEnqueueRejectedWhileInSession(t *testing.T) {
	rec := &pairRecorder{}
	live := map[string]bool{"a": true}
	q := New(10, func(id string) bool { return live[id] }, rec.pair)

	if _, err := q.Enqueue(player("a")); !errors.Is(err, ErrDuplicateSession) {
		t.Fatalf("expected ErrDuplicateSession for live player, got %v", err)
	}
	if _, err := q.Enqueue(player("b")); err != nil {
		t.Fatalf("Enqueue(b): %v", err)
	}
}

func TestQueueFull(t *testing.T) {
	rec := &pairRecorder{}
	q := New(1, nil, rec.pair)

	if _, err := q.Enqueue(player("a")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := q.Enqueue(player("b")); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestCancelRemovesWaitingEntry(t *testing.T) {
	rec := &pairRecorder{}
	q := New(10, nil, rec.pair)

	ticket, err := q.Enqueue(player("a"))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	q.Cancel(ticket)
	if q.Waiting() != 0 {
		t.Fatalf("cancel left entry behind, waiting=%d", q.Waiting())
	}

	// Canceled player never gets paired.
	if _, err := q.Enqueue(player("b")); err != nil {
		t.Fatalf("Enqueue(b): %v", err)
	}
	if len(rec.all()) != 0 {
		t.Fatalf("unexpected pairing after cancel: %v", rec.all())
	}
}

func TestStaleTicketIsNoOp(t *testing.T) {
	rec := &pairRecorder{}
	q := New(10, nil, rec.pair)

	old, err := q.Enqueue(player("a"))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	q.Cancel(old)

	// Re-enqueue and cancel with the stale ticket: the fresh entry stays.
	if _, err := q.Enqueue(player("a")); err != nil {
		t.Fatalf("re-Enqueue: %v", err)
	}
	q.Cancel(old)
	if q.Waiting() != 1 {
		t.Fatalf("stale cancel removed fresh entry, waiting=%d", q.Waiting())
	}
}

func TestCancelPlayer(t *testing.T) {
	rec := &pairRecorder{}
	q := New(10, nil, rec.pair)

	if _, err := q.Enqueue(player("a")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	q.CancelPlayer("a")
	if q.Waiting() != 0 {
		t.Fatalf("CancelPlayer left entry, waiting=%d", q.Waiting())
	}
}
