package notify

import (
	"context"
	"os"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"taskdesk-api/domain"
)

// Deliverer pushes a single payload to the delivery channel.
type Deliverer interface {
	Publish(ctx context.Context, payload domain.NotifyPayload) error
}

var (
	once            sync.Once
	jobs            chan domain.NotifyPayload
	workerCount     int
	jobBuf          int
	deliveryTimeout time.Duration
	handoffTimeout  time.Duration
	bg              = context.Background()
	globalDeliverer Deliverer
	globalLog       *log.Logger
	workerWG        sync.WaitGroup
)

// ShutdownSender stops worker goroutines and clears shared state. It is intended for tests.
func ShutdownSender() {
	if jobs != nil {
		close(jobs)
		jobs = nil
	}

	workerWG.Wait()

	globalDeliverer = nil
	globalLog = nil
	workerCount = 0
	jobBuf = 0
	deliveryTimeout = 0
	handoffTimeout = 0
	once = sync.Once{}
	workerWG = sync.WaitGroup{}
}

// InitSender starts the background delivery workers. Push delivery is
// fire-and-forget: a failed delivery is logged and dropped, it never affects
// the task operation that produced the payload.
func InitSender(deliverer Deliverer, logger *log.Logger) {
	once.Do(func() {
		globalDeliverer = deliverer
		if logger == nil {
			panic("Logger is not initialized")
		}
		globalLog = logger

		workerCount = envInt("NOTIFY_WORKERS", 8)
		jobBuf = envInt("NOTIFY_BUFFER", 1024)
		deliveryTimeout = envDur("NOTIFY_TIMEOUT", 30*time.Second)
		handoffTimeout = envDur("NOTIFY_HANDOFF_TIMEOUT", 10*time.Millisecond)

		jobs = make(chan domain.NotifyPayload, jobBuf)
		for i := 0; i < workerCount; i++ {
			workerWG.Add(1)
			go worker(i, jobs)
		}
		globalLog.Infof("notify sender started, workers: %d, buffer: %d, timeout: %v, handoff: %v", workerCount, jobBuf, deliveryTimeout, handoffTimeout)
	})
}

func worker(id int, jobCh <-chan domain.NotifyPayload) {
	defer workerWG.Done()
	for payload := range jobCh {
		ctx, cancel := context.WithTimeout(bg, deliveryTimeout)
		err := globalDeliverer.Publish(ctx, payload)
		cancel()

		if err != nil {
			globalLog.Errorf("push delivery failed, err: %v, user: %d, worker: %d", err, payload.TargetUserID, id)
		}
	}
}

// TrySend hands the payload to a delivery worker. It reports false when the
// buffer stayed saturated past the handoff timeout or the sender is not
// running; the payload is dropped in that case.
func TrySend(payload domain.NotifyPayload) bool {
	if jobs == nil {
		return false
	}

	if ok, closed := trySendNonBlocking(jobs, payload); closed {
		return false
	} else if ok {
		return true
	}

	if handoffTimeout <= 0 {
		return false
	}

	timer := time.NewTimer(handoffTimeout)
	defer timer.Stop()

	ok, closed := sendWithTimer(jobs, payload, timer.C)
	if closed {
		return false
	}
	return ok
}

func trySendNonBlocking(ch chan domain.NotifyPayload, payload domain.NotifyPayload) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- payload:
		return true, false
	default:
		return false, false
	}
}

func sendWithTimer(ch chan domain.NotifyPayload, payload domain.NotifyPayload, timer <-chan time.Time) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- payload:
		return true, false
	case <-timer:
		return false, false
	}
}

func envInt(name string, def int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func envDur(name string, def time.Duration) time.Duration {
	if v := os.Getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}
