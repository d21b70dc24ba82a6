package gerbang

import (
	"bytes"
	"net/http"
)

// CapturedResponse is a downstream response held in memory so it can be
// classified by the circuit breaker and replayed to every member of a
// coalescing group.
type CapturedResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// WriteTo replays the captured response onto a live writer.
func (cr *CapturedResponse) WriteTo(w http.ResponseWriter) {
	for name, values := range cr.Header {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.WriteHeader(cr.StatusCode)
	if len(cr.Body) > 0 {
		_, _ = w.Write(cr.Body)
	}
}

// responseRecorder is the http.ResponseWriter handed to the downstream
// handler when the pipeline needs to observe the response.
type responseRecorder struct {
	status      int
	header      http.Header
	body        bytes.Buffer
	wroteHeader bool
}

func newResponseRecorder() *responseRecorder {
	return &responseRecorder{
		status: http.StatusOK,
		header: make(http.Header),
	}
}

func (r *responseRecorder) Header() http.Header {
	return r.header
}

func (r *responseRecorder) WriteHeader(status int) {
	if r.wroteHeader {
		return
	}
	r.status = status
	r.wroteHeader = true
}

func (r *responseRecorder) Write(p []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	return r.body.Write(p)
}

func (r *responseRecorder) captured() *CapturedResponse {
	return &CapturedResponse{
		StatusCode: r.status,
		Header:     r.header,
		Body:       r.body.Bytes(),
	}
}
