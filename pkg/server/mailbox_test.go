package server

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMailboxFIFO(t *testing.T) {
	mb := NewMailbox(4)
	for _, r := range []string{"a", "b", "c"} {
		if err := mb.Send(context.Background(), r); err != nil {
			t.Fatalf("Send(%s): unexpected error: %v", r, err)
		}
	}
	for _, want := range []string{"a", "b", "c"} {
		if got := <-mb.Records(); got != want {
			t.Fatalf("Records: want %q, got %q", want, got)
		}
	}
}

func TestMailboxBlocksWhenFull(t *testing.T) {
	mb := NewMailbox(1)
	if err := mb.Send(context.Background(), "first"); err != nil {
		t.Fatalf("Send: unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := mb.Send(ctx, "second"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Send on full mailbox: want DeadlineExceeded, got %v", err)
	}

	// space frees up once the writer consumes
	<-mb.Records()
	if err := mb.Send(context.Background(), "third"); err != nil {
		t.Fatalf("Send after drain: unexpected error: %v", err)
	}
}

func TestMailboxCloseUnblocksSenders(t *testing.T) {
	mb := NewMailbox(1)
	_ = mb.Send(context.Background(), "fill")

	errCh := make(chan error, 1)
	go func() { errCh <- mb.Send(context.Background(), "blocked") }()

	time.Sleep(10 * time.Millisecond)
	mb.Close()
	mb.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrMailboxClosed) {
			t.Fatalf("blocked Send: want ErrMailboxClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("blocked Send did not return after Close")
	}

	select {
	case <-mb.Done():
	default:
		t.Fatalf("Done not closed after Close")
	}
	if err := mb.Send(context.Background(), "late"); !errors.Is(err, ErrMailboxClosed) {
		t.Fatalf("Send after Close: want ErrMailboxClosed, got %v", err)
	}
	// queued records stay readable
	if got := <-mb.Records(); got != "fill" {
		t.Fatalf("queued record: want fill, got %q", got)
	}
}

func TestMailboxDefaultSize(t *testing.T) {
	mb := NewMailbox(0)
	if got := cap(mb.records); got != DefaultMailboxSize {
		t.Fatalf("capacity: want %d, got %d", DefaultMailboxSize, got)
	}
}
