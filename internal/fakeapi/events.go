package fakeapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
)

type event struct {
	id   int
	kind string
	data []byte
}

// broker fans events out to every connected stream.
type broker struct {
	mu     sync.Mutex
	nextID int
	subs   map[chan event]struct{}
}

func newBroker() *broker {
	return &broker{subs: make(map[chan event]struct{})}
}

func (b *broker) subscribe() chan event {
	ch := make(chan event, 32)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *broker) unsubscribe(ch chan event) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
}

// publish drops the event for subscribers whose buffer is full.
func (b *broker) publish(kind string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	ev := event{id: b.nextID, kind: kind, data: data}
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribers reports the number of connected event streams.
func (s *Server) Subscribers() int {
	s.events.mu.Lock()
	defer s.events.mu.Unlock()
	return len(s.events.subs)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request, _ *User) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	ch := s.events.subscribe()
	defer s.events.unsubscribe(ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			_, _ = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", strconv.Itoa(ev.id), ev.kind, ev.data)
			flusher.Flush()
		}
	}
}

// Publish sends an event to every connected stream.
func (s *Server) Publish(kind string, payload any) {
	s.events.publish(kind, payload)
}
