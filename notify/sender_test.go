package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"taskdesk-api/domain"
)

type recordingDeliverer struct {
	mu       sync.Mutex
	payloads []domain.NotifyPayload
	err      error
}

func (d *recordingDeliverer) Publish(ctx context.Context, payload domain.NotifyPayload) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.payloads = append(d.payloads, payload)
	return nil
}

func (d *recordingDeliverer) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.payloads)
}

func waitForDeliveries(t *testing.T, d *recordingDeliverer, expected int) {
	t.Helper()
	deadline := time.Now().Add(200 * time.Millisecond)
	for {
		if d.Count() == expected {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %d deliveries, got %d", expected, d.Count())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTrySendDeliversPayload(t *testing.T) {
	ShutdownSender()
	t.Cleanup(ShutdownSender)

	d := &recordingDeliverer{}
	InitSender(d, log.New())

	payload := domain.PrepareNotifyPayload(7, "Fix the header")
	if !TrySend(payload) {
		t.Fatal("expected handoff to succeed")
	}
	waitForDeliveries(t, d, 1)
	if d.payloads[0].TargetUserID != 7 {
		t.Fatalf("unexpected payload: %+v", d.payloads[0])
	}
}

func TestTrySendSwallowsDeliveryFailure(t *testing.T) {
	ShutdownSender()
	t.Cleanup(ShutdownSender)

	d := &recordingDeliverer{err: errors.New("push endpoint down")}
	logger := log.New()
	InitSender(d, logger)

	if !TrySend(domain.NotifyPayload{TargetUserID: 1}) {
		t.Fatal("handoff must succeed even when delivery later fails")
	}
	// Give the worker time to run; failure must not surface anywhere.
	time.Sleep(30 * time.Millisecond)
}

func TestTrySendWithoutSender(t *testing.T) {
	ShutdownSender()

	if TrySend(domain.NotifyPayload{}) {
		t.Fatal("expected handoff to fail when sender is not running")
	}
}

func TestTrySendWaitsForCapacity(t *testing.T) {
	ShutdownSender()
	t.Cleanup(ShutdownSender)
	t.Cleanup(func() { jobs = nil })

	jobs = make(chan domain.NotifyPayload, 1)
	handoffTimeout = 50 * time.Millisecond

	jobs <- domain.NotifyPayload{}

	done := make(chan bool, 1)
	go func() {
		done <- TrySend(domain.NotifyPayload{})
	}()

	select {
	case <-done:
		t.Fatal("TrySend returned before capacity was freed")
	case <-time.After(20 * time.Millisecond):
	}

	<-jobs

	select {
	case ok := <-done:
		if !ok {
			t.Fatal("expected successful handoff after capacity freed")
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for handoff completion")
	}
}

func TestTrySendTimesOut(t *testing.T) {
	ShutdownSender()
	t.Cleanup(ShutdownSender)
	t.Cleanup(func() { jobs = nil })

	jobs = make(chan domain.NotifyPayload, 1)
	handoffTimeout = 30 * time.Millisecond

	jobs <- domain.NotifyPayload{}

	if TrySend(domain.NotifyPayload{}) {
		t.Fatal("expected handoff to fail when timeout elapsed")
	}

	select {
	case <-jobs:
	default:
		t.Fatal("expected channel to remain full after timeout")
	}
}

func TestTrySendReturnsFalseWhenClosed(t *testing.T) {
	ShutdownSender()
	t.Cleanup(func() { jobs = nil })

	jobs = make(chan domain.NotifyPayload)
	close(jobs)

	if TrySend(domain.NotifyPayload{}) {
		t.Fatal("expected handoff to fail when channel is closed")
	}
}
