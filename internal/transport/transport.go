// Package transport defines the fetch abstraction the segment pipeline
// dials through, independent of the underlying wire protocol.
package transport

import (
	"context"
	"io"
	"time"
)

// SegmentRequest describes one fetch: a byte range of a representation's
// media, or its initialization segment when IsInit is true.
type SegmentRequest struct {
	URL       string
	IsInit    bool
	RangeLow  int64 // 0 and RangeHigh 0 means "whole resource"
	RangeHigh int64
	Deadline  time.Time
}

// SegmentResponse is the raw result of a fetch: the payload plus wire-level
// facts the pipeline needs to emit a Sample.
type SegmentResponse struct {
	Body       io.ReadCloser
	StatusCode int
	IsChunked  bool
}

// Fetcher is the minimal transport surface the segment pipeline needs.
// Implementations: HTTPFetcher (plain net/http) and h3.Fetcher
// (HTTP/3-over-QUIC via github.com/quic-go/quic-go).
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, req SegmentRequest) (*SegmentResponse, error)
	Close() error
}
