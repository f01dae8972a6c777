package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-rod/rod"

	"webscope/internal/performance"
)

// metricsJS reads navigation, paint, layout shift, and memory figures
// from the page. Largest contentful paint and layout shift prefer the
// injected observers; the entry buffer is the fallback for pages the
// tracker never reached.
const metricsJS = `
() => {
	const navigation = performance.getEntriesByType('navigation')[0];
	const paint = performance.getEntriesByType('paint');
	const lcp = performance.getEntriesByType('largest-contentful-paint')[0];
	const cls = performance.getEntriesByType('layout-shift');
	const vitals = window.__webscopeVitals || {};

	return {
		pageLoadTime: navigation ? navigation.loadEventEnd - navigation.fetchStart : null,
		domContentLoaded: navigation ? navigation.domContentLoadedEventEnd - navigation.fetchStart : null,
		firstPaint: paint.find(p => p.name === 'first-paint')?.startTime || null,
		firstContentfulPaint: paint.find(p => p.name === 'first-contentful-paint')?.startTime || null,
		largestContentfulPaint: (vitals.lcp != null) ? vitals.lcp : (lcp ? lcp.startTime : null),
		cumulativeLayoutShift: (vitals.cls != null) ? vitals.cls : cls.reduce((sum, entry) => sum + entry.value, 0),
		memoryUsage: performance.memory ? {
			usedJSHeapSize: performance.memory.usedJSHeapSize,
			totalJSHeapSize: performance.memory.totalJSHeapSize,
			jsHeapSizeLimit: performance.memory.jsHeapSizeLimit
		} : null,
		resourceCount: performance.getEntriesByType('resource').length
	};
}
`

// MetricsSampler reads performance figures from a live page. It
// implements performance.Sampler.
type MetricsSampler struct {
	page *rod.Page
}

// NewMetricsSampler wraps a page.
func NewMetricsSampler(page *rod.Page) *MetricsSampler {
	return &MetricsSampler{page: page}
}

// CollectMetrics evaluates the metrics probe on the page.
func (s *MetricsSampler) CollectMetrics(ctx context.Context) (performance.Snapshot, error) {
	res, err := s.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           metricsJS,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return performance.Snapshot{}, fmt.Errorf("collect performance metrics: %w", err)
	}

	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return performance.Snapshot{}, fmt.Errorf("marshal performance metrics: %w", err)
	}

	var payload struct {
		PageLoadTime           *float64 `json:"pageLoadTime"`
		DOMContentLoaded       *float64 `json:"domContentLoaded"`
		FirstPaint             *float64 `json:"firstPaint"`
		FirstContentfulPaint   *float64 `json:"firstContentfulPaint"`
		LargestContentfulPaint *float64 `json:"largestContentfulPaint"`
		CumulativeLayoutShift  *float64 `json:"cumulativeLayoutShift"`
		Memory                 *struct {
			UsedJSHeapSize  int64 `json:"usedJSHeapSize"`
			TotalJSHeapSize int64 `json:"totalJSHeapSize"`
			JSHeapSizeLimit int64 `json:"jsHeapSizeLimit"`
		} `json:"memoryUsage"`
		ResourceCount *int `json:"resourceCount"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return performance.Snapshot{}, fmt.Errorf("decode performance metrics: %w", err)
	}

	snap := performance.Snapshot{
		Timestamp:              time.Now(),
		PageLoadTime:           payload.PageLoadTime,
		DOMContentLoaded:       payload.DOMContentLoaded,
		FirstPaint:             payload.FirstPaint,
		FirstContentfulPaint:   payload.FirstContentfulPaint,
		LargestContentfulPaint: payload.LargestContentfulPaint,
		CumulativeLayoutShift:  payload.CumulativeLayoutShift,
		ResourceCount:          payload.ResourceCount,
	}
	if payload.Memory != nil {
		snap.Memory = &performance.MemoryUsage{
			UsedBytes:  payload.Memory.UsedJSHeapSize,
			TotalBytes: payload.Memory.TotalJSHeapSize,
			LimitBytes: payload.Memory.JSHeapSizeLimit,
		}
	}
	return snap, nil
}
