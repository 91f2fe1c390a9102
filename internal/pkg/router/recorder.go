package router

import (
	"bufio"
	"bytes"
	"errors"
	"net"
	"net/http"
)

// responseRecorder captures the status, size and a bounded prefix of the
// body written by a handler.
type responseRecorder struct {
	http.ResponseWriter
	status int
	size   int
	body   bytes.Buffer
	limit  int
	capped bool
	err    error
}

func newResponseRecorder(w http.ResponseWriter, limit int) *responseRecorder {
	return &responseRecorder{ResponseWriter: w, limit: limit}
}

func (w *responseRecorder) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseRecorder) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	w.capture(p)

	n, err := w.ResponseWriter.Write(p)
	w.size += n
	return n, err
}

func (w *responseRecorder) capture(p []byte) {
	if w.capped || len(p) == 0 {
		return
	}
	room := w.limit - w.body.Len()
	if len(p) > room {
		p = p[:max(room, 0)]
		w.capped = true
	}
	w.body.Write(p)
}

// Status returns the response status, defaulting to 200 when nothing was written.
func (w *responseRecorder) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// SetError records the handler error reported through WriteError.
func (w *responseRecorder) SetError(err error) {
	w.err = err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *responseRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *responseRecorder) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

//nolint:err113 // it use dynamic error
func (w *responseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := w.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijack not supported")
}
