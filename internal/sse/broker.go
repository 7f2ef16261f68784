// Package sse streams import progress and inbox submissions to browsers as
// Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/starford/mdimport/internal/models"
)

// Event types.
const (
	EventProgress = "import.progress"
	EventInbox    = "inbox.submitted"
)

const (
	defaultThrottle  = 250 * time.Millisecond
	defaultKeepAlive = 15 * time.Second
	clientBuffer     = 64
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ProgressData is the payload of an import.progress event.
type ProgressData struct {
	TaskID   string                `json:"taskId"`
	Progress models.ImportProgress `json:"progress"`
}

// Subscription is one connected client. A non-empty TaskID restricts it to
// progress events of that task.
type Subscription struct {
	TaskID string
	C      <-chan []byte
	ch     chan []byte
}

// hub is the broker state. Only the run goroutine touches it.
type hub struct {
	subs     map[*Subscription]struct{}
	lastSent map[string]time.Time
	latest   map[string][]byte
	seq      uint64
}

// Option configures a Broker.
type Option func(*Broker)

// WithKeepAlive sets the interval of comment lines sent to idle clients.
func WithKeepAlive(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.keepAlive = d
		}
	}
}

// Broker fans events out to SSE clients. A single goroutine owns the
// subscriber set and the per-task throttle state; public methods hand it
// closures over a channel.
type Broker struct {
	throttle  time.Duration
	keepAlive time.Duration

	ops  chan func(*hub)
	stop chan struct{}
	done chan struct{}

	// mu is held for reading while an op is enqueued, so Close cannot
	// signal stop until every accepted op is in the buffer.
	mu     sync.RWMutex
	closed bool
}

// NewBroker creates a broker. Progress events for one task are limited to
// one per throttle interval; terminal snapshots always pass. A throttle of
// zero selects 250ms.
func NewBroker(throttle time.Duration, opts ...Option) *Broker {
	if throttle <= 0 {
		throttle = defaultThrottle
	}
	b := &Broker{
		throttle:  throttle,
		keepAlive: defaultKeepAlive,
		ops:       make(chan func(*hub), 256),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, o := range opts {
		o(b)
	}
	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.done)
	h := &hub{
		subs:     make(map[*Subscription]struct{}),
		lastSent: make(map[string]time.Time),
		latest:   make(map[string][]byte),
	}
	for {
		select {
		case <-b.stop:
			for drained := false; !drained; {
				select {
				case op := <-b.ops:
					op(h)
				default:
					drained = true
				}
			}
			for s := range h.subs {
				close(s.ch)
			}
			return
		case op := <-b.ops:
			op(h)
		}
	}
}

// do queues op on the broker goroutine. It reports false once the broker
// has stopped. Queued ops always run, during shutdown at the latest.
func (b *Broker) do(op func(*hub)) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return false
	}
	b.ops <- op
	return true
}

// frame encodes one event. It returns nil when data cannot be marshalled.
func (h *hub) frame(typ string, data any) []byte {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil
	}
	h.seq++
	return fmt.Appendf(nil, "id: %d\nevent: %s\ndata: %s\n\n", h.seq, typ, payload)
}

// send delivers msg without blocking; a client with a full buffer misses it.
func send(s *Subscription, msg []byte) {
	select {
	case s.ch <- msg:
	default:
	}
}

func (h *hub) broadcast(ev Event) {
	msg := h.frame(ev.Type, ev.Data)
	if msg == nil {
		return
	}
	for s := range h.subs {
		if s.TaskID == "" {
			send(s, msg)
		}
	}
}

func (h *hub) progress(d ProgressData, throttle time.Duration) {
	terminal := d.Progress.Status.Terminal()
	now := time.Now()
	if !terminal && now.Sub(h.lastSent[d.TaskID]) < throttle {
		return
	}
	msg := h.frame(EventProgress, d)
	if msg == nil {
		return
	}
	if terminal {
		delete(h.lastSent, d.TaskID)
		delete(h.latest, d.TaskID)
	} else {
		h.lastSent[d.TaskID] = now
		h.latest[d.TaskID] = msg
	}
	for s := range h.subs {
		if s.TaskID == "" || s.TaskID == d.TaskID {
			send(s, msg)
		}
	}
}

// Close stops the broker and closes every subscription.
func (b *Broker) Close() {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.stop)
	}
	b.mu.Unlock()
	<-b.done
}

// Subscribe registers a client. When taskID names a running task its latest
// snapshot is delivered first. The subscription's channel is closed when
// the broker stops.
func (b *Broker) Subscribe(taskID string) *Subscription {
	ch := make(chan []byte, clientBuffer)
	s := &Subscription{TaskID: taskID, C: ch, ch: ch}
	ok := b.do(func(h *hub) {
		h.subs[s] = struct{}{}
		if msg, found := h.latest[taskID]; found && taskID != "" {
			send(s, msg)
		}
	})
	if !ok {
		close(ch)
	}
	return s
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(s *Subscription) {
	b.do(func(h *hub) {
		if _, ok := h.subs[s]; ok {
			delete(h.subs, s)
			close(s.ch)
		}
	})
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	resp := make(chan int, 1)
	if !b.do(func(h *hub) { resp <- len(h.subs) }) {
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.done:
		return 0
	}
}

// Publish sends an event to every client without a task filter.
func (b *Broker) Publish(ev Event) {
	b.do(func(h *hub) { h.broadcast(ev) })
}

// PublishProgress publishes a task snapshot, subject to per-task throttling.
// Its signature matches ingest.Observer.
func (b *Broker) PublishProgress(taskID string, p models.ImportProgress) {
	d := ProgressData{TaskID: taskID, Progress: p.Clone()}
	b.do(func(h *hub) { h.progress(d, b.throttle) })
}

// ServeHTTP streams events until the client disconnects. The optional
// taskId query parameter limits the stream to one task.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "retry: %d\n\n", 3000)
	flusher.Flush()

	sub := b.Subscribe(r.URL.Query().Get("taskId"))
	defer b.Unsubscribe(sub)

	ping := time.NewTicker(b.keepAlive)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
