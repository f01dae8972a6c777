package performance

import (
	"context"
	"time"
)

// MemoryUsage is the JS heap sample attached to a snapshot when the
// browser exposes one.
type MemoryUsage struct {
	UsedBytes  int64 `json:"used_js_heap_size"`
	TotalBytes int64 `json:"total_js_heap_size"`
	LimitBytes int64 `json:"js_heap_size_limit"`
}

// UsagePercent is the used share of the heap limit, 0 when no limit is
// reported.
func (m MemoryUsage) UsagePercent() float64 {
	if m.LimitBytes == 0 {
		return 0
	}
	return float64(m.UsedBytes) / float64(m.LimitBytes) * 100
}

// Snapshot is one page-timing measurement, typically taken once per
// navigation. Every metric is optional: nil means the browser or context
// could not measure it, which is different from a measured zero. Times are
// milliseconds.
type Snapshot struct {
	Timestamp              time.Time    `json:"timestamp"`
	PageLoadTime           *float64     `json:"page_load_time,omitempty"`
	DOMContentLoaded       *float64     `json:"dom_content_loaded,omitempty"`
	FirstPaint             *float64     `json:"first_paint,omitempty"`
	FirstContentfulPaint   *float64     `json:"first_contentful_paint,omitempty"`
	LargestContentfulPaint *float64     `json:"largest_contentful_paint,omitempty"`
	CumulativeLayoutShift  *float64     `json:"cumulative_layout_shift,omitempty"`
	Memory                 *MemoryUsage `json:"memory_usage,omitempty"`
	ResourceCount          *int         `json:"resource_count,omitempty"`
}

// Sampler is the browser instrumentation boundary the assembler pulls one
// snapshot from. The call may suspend while the browser computes the
// values; it is the only suspension point in the engine.
type Sampler interface {
	CollectMetrics(ctx context.Context) (Snapshot, error)
}

// SamplerFunc adapts a function to the Sampler interface.
type SamplerFunc func(ctx context.Context) (Snapshot, error)

// CollectMetrics calls f.
func (f SamplerFunc) CollectMetrics(ctx context.Context) (Snapshot, error) {
	return f(ctx)
}
