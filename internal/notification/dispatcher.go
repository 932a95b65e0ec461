package notification

import (
	"context"
	"sync"
	"time"

	"situation-room/pkg/logger"
)

// Dispatcher sends email on a fixed pool of workers fed by a bounded queue.
// Delivery is fire-and-forget: a full queue drops the job and send
// failures are logged, never retried or reported to the caller.
type Dispatcher struct {
	sender      Sender
	queue       chan Email
	workers     int
	sendTimeout time.Duration
	logger      *logger.Logger
	stopChan    chan struct{}
	wg          sync.WaitGroup
	mu          sync.Mutex
	running     bool
}

func NewDispatcher(sender Sender, workers, queueSize int, sendTimeout time.Duration, l *logger.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Dispatcher{
		sender:      sender,
		queue:       make(chan Email, queueSize),
		workers:     workers,
		sendTimeout: sendTimeout,
		logger:      logger.OrGlobal(l),
		stopChan:    make(chan struct{}),
	}
}

// Start begins the worker loops
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}
	d.running = true
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
}

// Stop drains what is already queued, then shuts the workers down.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	close(d.stopChan)
	d.mu.Unlock()
	d.wg.Wait()
}

// Enqueue schedules an email without blocking. It reports whether the job
// was accepted.
func (d *Dispatcher) Enqueue(e Email) bool {
	select {
	case d.queue <- e:
		return true
	default:
		d.logger.Warnf("email queue full, dropping mail to %s (%s)", e.To, e.Subject)
		return false
	}
}

// Notify renders a room mail and queues one email per recipient.
func (d *Dispatcher) Notify(m RoomMail) {
	emails, err := m.Render()
	if err != nil {
		d.logger.Errorf("email render failed: %v", err)
		return
	}
	for _, e := range emails {
		d.Enqueue(e)
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case e := <-d.queue:
			d.send(e)
		case <-d.stopChan:
			for {
				select {
				case e := <-d.queue:
					d.send(e)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) send(e Email) {
	ctx := context.Background()
	if d.sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.sendTimeout)
		defer cancel()
	}
	if err := d.sender.Send(ctx, e); err != nil {
		d.logger.Errorf("send email failed: %s: %v", e.To, err)
	}
}
