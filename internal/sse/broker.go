// Package sse implements a Server-Sent Events broker for job progress and
// vault change notifications.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// Event types emitted by the broker itself.
const (
	TypeRecordCreated = "record.created"
	TypeRecordUpdated = "record.updated"
	TypeRecordDeleted = "record.deleted"
	TypeGraphUpdated  = "graph.updated"
	TypeJobCompleted  = "job.completed"
)

var recordEventTypes = map[string]string{
	"created": TypeRecordCreated,
	"updated": TypeRecordUpdated,
	"deleted": TypeRecordDeleted,
}

const (
	clientBuffer = 64
	historySize  = 256
)

// Event is one message for subscribers. A non-empty Job scopes it: clients
// following a single job only see events carrying that ID.
type Event struct {
	Type string `json:"type"`
	Job  string `json:"-"`
	Data any    `json:"data"`
}

type frame struct {
	id  uint64
	job string
	raw []byte
}

func (f frame) visibleTo(job string) bool {
	return job == "" || job == f.job
}

// hub is the broker state. It is only touched by the broker loop.
type hub struct {
	clients   map[chan []byte]string
	history   []frame
	seq       uint64
	lastGraph time.Time
	graphMin  time.Duration
}

func (h *hub) emit(ev Event) {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return
	}
	h.seq++
	f := frame{
		id:  h.seq,
		job: ev.Job,
		raw: fmt.Appendf(nil, "id: %d\nevent: %s\ndata: %s\n\n", h.seq, ev.Type, payload),
	}
	if len(h.history) == historySize {
		h.history = append(h.history[:0], h.history[1:]...)
	}
	h.history = append(h.history, f)

	for ch, job := range h.clients {
		if !f.visibleTo(job) {
			continue
		}
		select {
		case ch <- f.raw:
		default:
			// slow client, drop
		}
	}
}

// graphChanged emits graph.updated at most once per graphMin.
func (h *hub) graphChanged() {
	if now := time.Now(); now.Sub(h.lastGraph) >= h.graphMin {
		h.lastGraph = now
		h.emit(Event{Type: TypeGraphUpdated, Data: map[string]string{}})
	}
}

// attach registers ch and queues every retained frame newer than after.
func (h *hub) attach(ch chan []byte, job string, after uint64) {
	if after > 0 {
		for _, f := range h.history {
			if f.id <= after || !f.visibleTo(job) {
				continue
			}
			select {
			case ch <- f.raw:
			default:
			}
		}
	}
	h.clients[ch] = job
}

// Broker fans events out to SSE clients. All state lives in a hub owned by
// one goroutine; public methods hand it closures over a channel.
type Broker struct {
	keepAlive time.Duration

	ops     chan func(*hub)
	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker. graphThrottle bounds how often graph.updated
// is sent; zero means two seconds.
func NewBroker(graphThrottle time.Duration) *Broker {
	if graphThrottle <= 0 {
		graphThrottle = 2 * time.Second
	}
	b := &Broker{
		keepAlive: 15 * time.Second,
		ops:       make(chan func(*hub), 256),
		stopCh:    make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	h := &hub{clients: make(map[chan []byte]string), graphMin: graphThrottle}
	go b.loop(h)
	return b
}

func (b *Broker) loop(h *hub) {
	defer close(b.stopped)
	for {
		select {
		case <-b.stopCh:
			for ch := range h.clients {
				close(ch)
			}
			return
		case op := <-b.ops:
			op(h)
		}
	}
}

// send queues op for the loop. It reports false once the broker is closed.
func (b *Broker) send(op func(*hub)) bool {
	if b.closed.Load() {
		return false
	}
	select {
	case b.ops <- op:
		return true
	case <-b.stopped:
		return false
	}
}

// Close stops the loop and closes every client channel. It is idempotent.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a live client. A non-empty job restricts it to that job's events.
func (b *Broker) Subscribe(job string) chan []byte {
	return b.Resume(job, 0)
}

// Resume is Subscribe for a reconnecting client: retained events with an ID
// greater than lastID are delivered first.
func (b *Broker) Resume(job string, lastID uint64) chan []byte {
	ch := make(chan []byte, clientBuffer)
	if !b.send(func(h *hub) { h.attach(ch, job, lastID) }) {
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	b.send(func(h *hub) {
		if _, ok := h.clients[ch]; ok {
			delete(h.clients, ch)
			close(ch)
		}
	})
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	resp := make(chan int, 1)
	if !b.send(func(h *hub) { resp <- len(h.clients) }) {
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish broadcasts ev. A job.completed event is followed by a throttled
// graph.updated.
func (b *Broker) Publish(ev Event) {
	b.send(func(h *hub) {
		h.emit(ev)
		if ev.Type == TypeJobCompleted {
			h.graphChanged()
		}
	})
}

// PublishJob broadcasts a job progress event scoped to jobID.
func (b *Broker) PublishJob(eventType, jobID string, data any) {
	b.Publish(Event{Type: eventType, Job: jobID, Data: data})
}

// PublishRecordEvent reports a vault change (created, updated or deleted)
// followed by a throttled graph.updated. Unknown kinds only touch the graph.
func (b *Broker) PublishRecordEvent(kind, path string) {
	b.send(func(h *hub) {
		if typ, ok := recordEventTypes[kind]; ok {
			h.emit(Event{Type: typ, Data: map[string]string{"path": path}})
		}
		h.graphChanged()
	})
}

// ServeHTTP streams events (GET /api/events). The job query parameter
// narrows the stream to one job; Last-Event-ID resumes after a reconnect.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	lastID, _ := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64)
	ch := b.Resume(r.URL.Query().Get("job"), lastID)
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(b.keepAlive)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
