package registry

import (
	"sync"
	"testing"

	"github.com/kapu/chess-arena/internal/domain"
	"github.com/kapu/chess-arena/internal/protocol"
)

type stubConn struct {
	mu     sync.Mutex
	envs   []protocol.Envelope
	closed string
	full   bool
}

func (c *stubConn) Push(env protocol.Envelope) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return false
	}
	c.envs = append(c.envs, env)
	return true
}

func (c *stubConn) Close(reason string) {
	c.mu.Lock()
	c.closed = reason
	c.mu.Unlock()
}

func TestBindSupersedesPreviousConn(t *testing.T) {
	r := New()
	old := &stubConn{}
	fresh := &stubConn{}
	player := domain.PlayerIdentity{ID: "p1", Name: "One"}

	r.Bind(player, old)
	r.Bind(player, fresh)

	if old.closed == "" {
		t.Fatalf("superseded connection was not closed")
	}
	if !r.Push("p1", protocol.Envelope{Type: protocol.TypeResync}) {
		t.Fatalf("push to fresh conn failed")
	}
	if len(fresh.envs) != 1 || len(old.envs) != 0 {
		t.Fatalf("frame went to the wrong conn: fresh=%d old=%d", len(fresh.envs), len(old.envs))
	}
}

func TestPushSkipsPendingAndUnknown(t *testing.T) {
	r := New()
	conn := &stubConn{}
	r.Bind(domain.PlayerIdentity{ID: "p1"}, conn)

	if !r.MarkPending("p1", conn) {
		t.Fatalf("MarkPending from the bound conn should transition")
	}
	if r.State("p1") != StatePending {
		t.Fatalf("state = %q, want pending", r.State("p1"))
	}
	if r.Push("p1", protocol.Envelope{Type: protocol.TypeMove}) {
		t.Fatalf("push to pending binding should fail")
	}
	if r.Push("ghost", protocol.Envelope{Type: protocol.TypeMove}) {
		t.Fatalf("push to unknown player should fail")
	}
}

func TestRemoveClosesConn(t *testing.T) {
	r := New()
	conn := &stubConn{}
	r.Bind(domain.PlayerIdentity{ID: "p1"}, conn)

	if !r.Remove("p1", conn) {
		t.Fatalf("Remove from the bound conn should act")
	}
	if conn.closed == "" {
		t.Fatalf("removed binding left conn open")
	}
	if r.State("p1") != StateClosed {
		t.Fatalf("state = %q, want closed", r.State("p1"))
	}
	if _, ok := r.Identity("p1"); ok {
		t.Fatalf("identity survived removal")
	}
}

func TestStaleConnCannotEvictFreshBinding(t *testing.T) {
	r := New()
	old := &stubConn{}
	fresh := &stubConn{}
	player := domain.PlayerIdentity{ID: "p1"}

	r.Bind(player, old)
	r.Bind(player, fresh)

	// The superseded connection's death reports must not touch the
	// live binding.
	if r.MarkPending("p1", old) {
		t.Fatalf("stale MarkPending transitioned the fresh binding")
	}
	if r.State("p1") != StateConnected {
		t.Fatalf("state = %q, want connected", r.State("p1"))
	}
	if r.Remove("p1", old) {
		t.Fatalf("stale Remove dropped the fresh binding")
	}
	if !r.Push("p1", protocol.Envelope{Type: protocol.TypeMove}) {
		t.Fatalf("fresh binding stopped receiving frames")
	}
	if fresh.closed != "" {
		t.Fatalf("fresh conn was closed by a stale event")
	}
}

func TestPushReportsFullQueue(t *testing.T) {
	r := New()
	conn := &stubConn{full: true}
	r.Bind(domain.PlayerIdentity{ID: "p1"}, conn)

	if r.Push("p1", protocol.Envelope{Type: protocol.TypeMove}) {
		t.Fatalf("full outbound queue should report false")
	}
}
