package network

import (
	"net/url"
	"time"
)

// State tags where a request sits in its lifecycle. Every request starts
// Pending and transitions exactly once, to Completed or Failed.
type State string

const (
	StatePending   State = "pending"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Timing is the optional per-request breakdown supplied by the browser.
// Every field is a duration in milliseconds; nil means the instrumentation
// did not measure it.
type Timing struct {
	DNSLookup       *float64 `json:"dns_lookup,omitempty"`
	TCPConnect      *float64 `json:"tcp_connect,omitempty"`
	TLSHandshake    *float64 `json:"tls_handshake,omitempty"`
	RequestSent     *float64 `json:"request_sent,omitempty"`
	Waiting         *float64 `json:"waiting,omitempty"`
	ContentDownload *float64 `json:"content_download,omitempty"`
	TotalTime       *float64 `json:"total_time,omitempty"`
}

// Request is one HTTP exchange tracked through its lifecycle.
type Request struct {
	ID           string            `json:"request_id"`
	URL          string            `json:"url"`
	Method       string            `json:"method"`
	Headers      map[string]string `json:"headers,omitempty"`
	ResourceType string            `json:"resource_type"`
	Initiator    map[string]any    `json:"initiator,omitempty"`
	PostData     string            `json:"post_data,omitempty"`
	RequestedAt  time.Time         `json:"request_timestamp"`
	State        State             `json:"state"`

	Status            int               `json:"response_status,omitempty"`
	ResponseHeaders   map[string]string `json:"response_headers,omitempty"`
	RespondedAt       time.Time         `json:"response_timestamp,omitzero"`
	Size              *int64            `json:"size,omitempty"`
	CompressedSize    *int64            `json:"compressed_size,omitempty"`
	Timing            *Timing           `json:"timing,omitempty"`
	CacheHit          bool              `json:"cache_hit"`
	FromServiceWorker bool              `json:"from_service_worker"`

	Error         string `json:"error,omitempty"`
	BlockedReason string `json:"blocked_reason,omitempty"`
}

// DurationMS reports the request round-trip in milliseconds. It is defined
// only once a response timestamp exists; pending requests and failures
// without one report false.
func (r *Request) DurationMS() (float64, bool) {
	if r.RespondedAt.IsZero() || r.RequestedAt.IsZero() {
		return 0, false
	}
	return float64(r.RespondedAt.Sub(r.RequestedAt)) / float64(time.Millisecond), true
}

// Domain is the host portion of the request URL, empty when the URL does
// not parse.
func (r *Request) Domain() string {
	u, err := url.Parse(r.URL)
	if err != nil {
		return ""
	}
	return u.Host
}

// IsSuccessful reports whether the response status is in [200,400).
func (r *Request) IsSuccessful() bool {
	return r.Status >= 200 && r.Status < 400
}

// IsError reports whether the exchange failed outright or returned a 4xx
// or 5xx status.
func (r *Request) IsError() bool {
	return r.Error != "" || r.Status >= 400
}
