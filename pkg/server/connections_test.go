package server

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestClaimNicknameExclusive(t *testing.T) {
	r := NewConnectionRegistry()
	a, b := NewMailbox(1), NewMailbox(1)

	if !r.ClaimNickname(a, "bob") {
		t.Fatalf("first claim: want true")
	}
	if r.ClaimNickname(b, "bob") {
		t.Fatalf("second claim by another mailbox: want false")
	}
	if r.ClaimNickname(a, "bob") {
		t.Fatalf("repeat claim by owner: want false")
	}
	if mb, _ := r.Lookup("bob"); mb != a {
		t.Fatalf("Lookup: owner changed after failed claim")
	}
}

func TestClaimNicknameConcurrent(t *testing.T) {
	for round := 0; round < 50; round++ {
		r := NewConnectionRegistry()
		const contenders = 16

		var wins atomic.Int32
		var wg sync.WaitGroup
		start := make(chan struct{})
		for i := 0; i < contenders; i++ {
			mb := NewMailbox(1)
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				if r.ClaimNickname(mb, "bob") {
					wins.Add(1)
				}
			}()
		}
		close(start)
		wg.Wait()

		if got := wins.Load(); got != 1 {
			t.Fatalf("round %d: want exactly one winner, got %d", round, got)
		}
	}
}

func TestReleaseNicknameOwnerOnly(t *testing.T) {
	r := NewConnectionRegistry()
	a, b := NewMailbox(1), NewMailbox(1)
	r.ClaimNickname(a, "bob")

	if r.ReleaseNickname(b, "bob") {
		t.Fatalf("release by non-owner: want false")
	}
	if !r.ReleaseNickname(a, "bob") {
		t.Fatalf("release by owner: want true")
	}
	if !r.ClaimNickname(b, "bob") {
		t.Fatalf("claim after release: want true")
	}
}

func TestDeliverSkipsUnknown(t *testing.T) {
	r := NewConnectionRegistry()
	bob, joe := NewMailbox(4), NewMailbox(4)
	r.ClaimNickname(bob, "bob")
	r.ClaimNickname(joe, "joe")

	delivered, skipped := r.Deliver(context.Background(), ":amy!amy@localhost", "hi", []string{"bob", "ghost", "joe"})
	if delivered != 2 {
		t.Fatalf("delivered: want 2, got %d", delivered)
	}
	if diff := cmp.Diff([]string{"ghost"}, skipped); diff != "" {
		t.Fatalf("skipped mismatch (-want +got):\n%s", diff)
	}
	if got := <-bob.Records(); got != ":amy!amy@localhost PRIVMSG bob hi\r\n" {
		t.Fatalf("bob record: got %q", got)
	}
	if got := <-joe.Records(); got != ":amy!amy@localhost PRIVMSG joe hi\r\n" {
		t.Fatalf("joe record: got %q", got)
	}
}

func TestDeliverToClosedMailbox(t *testing.T) {
	r := NewConnectionRegistry()
	gone := NewMailbox(1)
	r.ClaimNickname(gone, "gone")
	gone.Close()

	delivered, skipped := r.Deliver(context.Background(), ":a!a@h", "hi", []string{"gone"})
	if delivered != 0 || len(skipped) != 0 {
		t.Fatalf("Deliver to closed mailbox: want 0 delivered none skipped, got %d %v", delivered, skipped)
	}
}

func TestUnregisterReleasesNicknames(t *testing.T) {
	r := NewConnectionRegistry()
	a, b := NewMailbox(1), NewMailbox(1)
	r.Register("10.0.0.1:1", a)
	r.Register("10.0.0.2:2", b)
	r.ClaimNickname(a, "alice")
	r.ClaimNickname(a, "alias")
	r.ClaimNickname(b, "bob")

	released := r.Unregister("10.0.0.1:1", a)
	if diff := cmp.Diff([]string{"alias", "alice"}, released, cmpopts.SortSlices(func(x, y string) bool { return x < y })); diff != "" {
		t.Fatalf("released mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"bob"}, r.Nicknames()); diff != "" {
		t.Fatalf("nicknames mismatch (-want +got):\n%s", diff)
	}
	if got := r.Count(); got != 1 {
		t.Fatalf("Count: want 1, got %d", got)
	}

	// a stale unregister for a reused address must not drop the new entry
	c := NewMailbox(1)
	r.Register("10.0.0.2:2", c)
	r.Unregister("10.0.0.2:2", b)
	if got := r.Count(); got != 1 {
		t.Fatalf("Count after stale unregister: want 1, got %d", got)
	}
}

func TestBroadcastReachesUnnamedConnections(t *testing.T) {
	r := NewConnectionRegistry()
	a, b := NewMailbox(1), NewMailbox(1)
	r.Register("a", a)
	r.Register("b", b)
	r.ClaimNickname(a, "alice")

	if n := r.Broadcast(context.Background(), "ERROR :bye\r\n"); n != 2 {
		t.Fatalf("Broadcast: want 2, got %d", n)
	}
	if got := <-b.Records(); got != "ERROR :bye\r\n" {
		t.Fatalf("unnamed connection record: got %q", got)
	}
}
