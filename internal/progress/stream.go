// Regsync - HR Registry Synchronization Service
// Copyright 2026 D. Vicanovic (dvicanovic)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dvicanovic/regsync

package progress

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/goccy/go-json"
)

// streamMessage is the wire shape of one SSE line. Type is "progress" for
// intermediate events and "complete" for the final summary event.
type streamMessage struct {
	Type string `json:"type"`
	Event
}

// StreamWriter emits progress events to an HTTP response as server-sent
// events: one "data: "-prefixed JSON object per event. It implements
// Reporter and is safe for concurrent use.
//
// Write failures flip the dead flag and subsequent events are dropped; the
// caller detects client disconnect through the request context, not through
// the reporter.
type StreamWriter struct {
	mu   sync.Mutex
	w    http.ResponseWriter
	fl   http.Flusher
	dead bool
}

// NewStreamWriter prepares an SSE stream on w and writes the event-stream
// headers. Returns an error if the ResponseWriter does not support flushing.
func NewStreamWriter(w http.ResponseWriter) (*StreamWriter, error) {
	fl, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fl.Flush()

	return &StreamWriter{w: w, fl: fl}, nil
}

// Report writes one event as an SSE data line and flushes.
func (s *StreamWriter) Report(e Event) {
	msg := streamMessage{Type: "progress", Event: e}
	if e.Summary != nil {
		msg.Type = "complete"
	}
	s.write(msg)
}

// Complete writes a final completion event carrying the given summary.
func (s *StreamWriter) Complete(e Event) {
	s.write(streamMessage{Type: "complete", Event: e})
}

func (s *StreamWriter) write(msg streamMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dead {
		return
	}

	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", b); err != nil {
		s.dead = true
		return
	}
	s.fl.Flush()
}
