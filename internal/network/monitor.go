package network

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RequestInput is a request-started signal from the instrumentation
// boundary.
type RequestInput struct {
	RequestID    string            `json:"request_id"`
	URL          string            `json:"url"`
	Method       string            `json:"method"`
	Headers      map[string]string `json:"headers,omitempty"`
	ResourceType string            `json:"resource_type,omitempty"`
	Initiator    map[string]any    `json:"initiator,omitempty"`
	PostData     string            `json:"post_data,omitempty"`
}

// ResponseInput is a response-received signal. FromCache carries the raw
// cache marker some browsers report as a string; the disk and memory flags
// are the structured equivalents.
type ResponseInput struct {
	Status            int               `json:"status"`
	Headers           map[string]string `json:"headers,omitempty"`
	Size              *int64            `json:"size,omitempty"`
	CompressedSize    *int64            `json:"compressed_size,omitempty"`
	FromCache         string            `json:"from_cache,omitempty"`
	FromDiskCache     bool              `json:"from_disk_cache,omitempty"`
	FromMemoryCache   bool              `json:"from_memory_cache,omitempty"`
	FromServiceWorker bool              `json:"from_service_worker,omitempty"`
	Timing            *Timing           `json:"timing,omitempty"`
}

// RequestSummary is one row of the slowest/fastest request lists.
type RequestSummary struct {
	URL      string  `json:"url"`
	Method   string  `json:"method"`
	Duration float64 `json:"duration"`
	Status   int     `json:"status,omitempty"`
	Size     *int64  `json:"size,omitempty"`
	CacheHit bool    `json:"cache_hit"`
}

// Analysis is the aggregate health/performance view over every finished
// request. Pending requests are excluded from every figure. It is always
// recomputed from the request store, never cached.
type Analysis struct {
	TotalRequests      int `json:"total_requests"`
	SuccessfulRequests int `json:"successful_requests"`
	FailedRequests     int `json:"failed_requests"`
	BlockedRequests    int `json:"blocked_requests"`
	CachedRequests     int `json:"cached_requests"`

	AverageResponseTime float64          `json:"average_response_time"`
	SlowestRequests     []RequestSummary `json:"slowest_requests"`
	FastestRequests     []RequestSummary `json:"fastest_requests"`

	ResourceTypes map[string]int `json:"resource_types"`
	Domains       map[string]int `json:"domains"`
	StatusCodes   map[int]int    `json:"status_codes"`

	TotalBytes       int64   `json:"total_bytes_transferred"`
	CompressedBytes  int64   `json:"total_bytes_compressed"`
	CompressionRatio float64 `json:"compression_ratio"`

	Issues           []string `json:"issues"`
	Recommendations  []string `json:"recommendations"`
	PerformanceScore float64  `json:"performance_score"`
}

// DomainStats is the per-domain rollup returned by DomainAnalysis.
type DomainStats struct {
	TotalRequests       int            `json:"total_requests"`
	SuccessfulRequests  int            `json:"successful_requests"`
	FailedRequests      int            `json:"failed_requests"`
	TotalBytes          int64          `json:"total_bytes"`
	AverageResponseTime float64        `json:"average_response_time"`
	MaxResponseTime     float64        `json:"max_response_time"`
	MinResponseTime     float64        `json:"min_response_time"`
	ResourceTypes       map[string]int `json:"resource_types"`
	StatusCodes         map[int]int    `json:"status_codes"`
	SuccessRate         float64        `json:"success_rate"`
}

// TimelineEntry is one row of the bounded recent-request timeline.
type TimelineEntry struct {
	Timestamp time.Time `json:"timestamp"`
	URL       string    `json:"url"`
	Method    string    `json:"method"`
	Status    int       `json:"status,omitempty"`
	Duration  *float64  `json:"duration,omitempty"`
	Size      *int64    `json:"size,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// ExportSummary combines the analyses with pending-state counts and a
// bounded recent timeline for reporting.
type ExportSummary struct {
	MonitoringDuration    float64                `json:"monitoring_duration"`
	Analysis              Analysis               `json:"analysis"`
	DomainAnalysis        map[string]DomainStats `json:"domain_analysis"`
	PendingRequests       int                    `json:"pending_requests"`
	DistinctDomains       int                    `json:"distinct_domains"`
	DistinctResourceTypes int                    `json:"distinct_resource_types"`
	Timeline              []TimelineEntry        `json:"timeline"`
}

const (
	extremesLimit = 5
	timelineLimit = 20

	defaultResourceType = "other"
)

// Monitor correlates request, response and failure signals into request
// lifecycles and derives analyses. One store holds every request keyed by
// id with a state tag; the pending count is a filter over that store, and
// finished requests additionally sit in an ordered list. Ingestion and
// reads are safe to interleave from multiple goroutines.
type Monitor struct {
	mu        sync.RWMutex
	requests  map[string]*Request
	finished  []*Request
	domains   map[string]struct{}
	resources map[string]struct{}
	start     time.Time
	logger    *zap.Logger
}

// NewMonitor builds an empty Monitor. A nil logger is replaced with a
// no-op logger.
func NewMonitor(logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		requests:  make(map[string]*Request),
		domains:   make(map[string]struct{}),
		resources: make(map[string]struct{}),
		start:     time.Now(),
		logger:    logger,
	}
}

// AddRequest registers a new exchange in Pending state and returns its id.
// A caller-supplied id is used as-is; otherwise a timestamp-based id is
// minted. Uniqueness within a session is the caller's responsibility. The
// request's domain and resource type are recorded in running seen-sets for
// cardinality reporting.
func (m *Monitor) AddRequest(in RequestInput) string {
	id := in.RequestID
	if id == "" {
		id = fmt.Sprintf("%d", time.Now().UnixNano())
	}
	resourceType := in.ResourceType
	if resourceType == "" {
		resourceType = defaultResourceType
	}

	req := &Request{
		ID:           id,
		URL:          in.URL,
		Method:       in.Method,
		Headers:      in.Headers,
		ResourceType: resourceType,
		Initiator:    in.Initiator,
		PostData:     in.PostData,
		RequestedAt:  time.Now(),
		State:        StatePending,
	}

	m.mu.Lock()
	m.requests[id] = req
	m.domains[req.Domain()] = struct{}{}
	m.resources[resourceType] = struct{}{}
	m.mu.Unlock()

	m.logger.Debug("network request added",
		zap.String("request_id", id),
		zap.String("method", in.Method),
		zap.String("url", in.URL))
	return id
}

// AddResponse correlates a response with its pending request, populates
// the response fields, and transitions the request to Completed. An id
// with no pending entry is logged and ignored: the browser routinely
// reports exchanges that began before monitoring did.
func (m *Monitor) AddResponse(id string, in ResponseInput) {
	m.mu.Lock()
	req, ok := m.requests[id]
	if !ok || req.State != StatePending {
		m.mu.Unlock()
		m.logger.Warn("response received for unknown request", zap.String("request_id", id))
		return
	}

	req.Status = in.Status
	req.ResponseHeaders = in.Headers
	req.RespondedAt = time.Now()
	req.Size = in.Size
	req.CompressedSize = in.CompressedSize
	req.CacheHit = strings.Contains(in.FromCache, "from-cache") || in.FromDiskCache || in.FromMemoryCache
	req.FromServiceWorker = in.FromServiceWorker
	req.Timing = in.Timing
	req.State = StateCompleted
	m.finished = append(m.finished, req)
	m.mu.Unlock()

	m.logger.Debug("network response recorded",
		zap.String("request_id", id),
		zap.String("url", req.URL),
		zap.Int("status", in.Status))
}

// AddFailure transitions a pending request to Failed with the given error
// and optional blocked reason. The same lookup-or-warn discipline as
// AddResponse applies. Failed requests carry no duration.
func (m *Monitor) AddFailure(id, errText, blockedReason string) {
	m.mu.Lock()
	req, ok := m.requests[id]
	if !ok || req.State != StatePending {
		m.mu.Unlock()
		m.logger.Warn("failure reported for unknown request", zap.String("request_id", id))
		return
	}

	req.Error = errText
	req.BlockedReason = blockedReason
	req.State = StateFailed
	m.finished = append(m.finished, req)
	m.mu.Unlock()

	m.logger.Warn("network request failed",
		zap.String("request_id", id),
		zap.String("url", req.URL),
		zap.String("error", errText))
}

// PendingCount reports how many requests are still awaiting a response or
// failure. Teardown surfaces this figure instead of dropping the entries.
func (m *Monitor) PendingCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pendingCountLocked()
}

func (m *Monitor) pendingCountLocked() int {
	n := 0
	for _, req := range m.requests {
		if req.State == StatePending {
			n++
		}
	}
	return n
}

// Stats is the lightweight rollup used by session summaries. Unlike
// Analysis it counts pending requests into the total.
type Stats struct {
	TotalRequests   int         `json:"total_requests"`
	FailedRequests  int         `json:"failed_requests"`
	PendingRequests int         `json:"pending_requests"`
	StatusCodes     map[int]int `json:"status_codes"`
}

// Stats counts tracked requests per state without running the full
// analysis.
func (m *Monitor) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Stats{StatusCodes: map[int]int{}}
	s.PendingRequests = m.pendingCountLocked()
	s.TotalRequests = len(m.finished) + s.PendingRequests
	for _, req := range m.finished {
		if req.State == StateFailed {
			s.FailedRequests++
		}
		if req.Status != 0 {
			s.StatusCodes[req.Status]++
		}
	}
	return s
}

// PendingRequests returns copies of every request still in flight, oldest
// first.
func (m *Monitor) PendingRequests() []Request {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Request
	for _, req := range m.requests {
		if req.State == StatePending {
			out = append(out, *req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	return out
}

// Analysis recomputes the aggregate view over finished requests. With none
// finished it returns a fully zero-valued result.
func (m *Monitor) Analysis() Analysis {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.analysisLocked()
}

func (m *Monitor) analysisLocked() Analysis {
	analysis := Analysis{
		SlowestRequests: []RequestSummary{},
		FastestRequests: []RequestSummary{},
		ResourceTypes:   map[string]int{},
		Domains:         map[string]int{},
		StatusCodes:     map[int]int{},
		Issues:          []string{},
		Recommendations: []string{},
	}
	if len(m.finished) == 0 {
		return analysis
	}

	analysis.TotalRequests = len(m.finished)

	var timed []*Request
	var totalMS float64
	for _, req := range m.finished {
		if req.IsSuccessful() {
			analysis.SuccessfulRequests++
		}
		if req.IsError() {
			analysis.FailedRequests++
		}
		if req.BlockedReason != "" {
			analysis.BlockedRequests++
		}
		if req.CacheHit {
			analysis.CachedRequests++
		}
		if ms, ok := req.DurationMS(); ok {
			timed = append(timed, req)
			totalMS += ms
		}
		analysis.ResourceTypes[req.ResourceType]++
		analysis.Domains[req.Domain()]++
		if req.Status != 0 {
			analysis.StatusCodes[req.Status]++
		}
		if req.Size != nil {
			analysis.TotalBytes += *req.Size
		}
		if req.CompressedSize != nil {
			analysis.CompressedBytes += *req.CompressedSize
		}
	}

	if len(timed) > 0 {
		analysis.AverageResponseTime = totalMS / float64(len(timed))
	}

	sort.SliceStable(timed, func(i, j int) bool {
		di, _ := timed[i].DurationMS()
		dj, _ := timed[j].DurationMS()
		return di > dj
	})
	for i := 0; i < len(timed) && i < extremesLimit; i++ {
		analysis.SlowestRequests = append(analysis.SlowestRequests, summarize(timed[i]))
	}
	for i := len(timed) - 1; i >= 0 && len(analysis.FastestRequests) < extremesLimit; i-- {
		analysis.FastestRequests = append(analysis.FastestRequests, summarize(timed[i]))
	}

	if analysis.TotalBytes > 0 {
		analysis.CompressionRatio = 1 - float64(analysis.CompressedBytes)/float64(analysis.TotalBytes)
		if analysis.CompressionRatio < 0 {
			analysis.CompressionRatio = 0
		}
	}

	analysis.Issues, analysis.Recommendations = diagnose(analysis)

	successRate := float64(analysis.SuccessfulRequests) / float64(analysis.TotalRequests)
	cacheRate := float64(analysis.CachedRequests) / float64(analysis.TotalRequests)
	analysis.PerformanceScore = performanceScore(successRate, analysis.AverageResponseTime, cacheRate)

	return analysis
}

func summarize(req *Request) RequestSummary {
	ms, _ := req.DurationMS()
	return RequestSummary{
		URL:      req.URL,
		Method:   req.Method,
		Duration: ms,
		Status:   req.Status,
		Size:     req.Size,
		CacheHit: req.CacheHit,
	}
}

// diagnose derives the fixed-threshold issue and recommendation lists.
// The failure-rate boundary is exclusive: exactly 10% does not trigger.
func diagnose(a Analysis) (issues, recs []string) {
	issues = []string{}
	recs = []string{}

	failureRate := float64(a.FailedRequests) / float64(a.TotalRequests)
	if failureRate > 0.1 {
		issues = append(issues, fmt.Sprintf("High network failure rate: %.1f%% of requests failed", failureRate*100))
		recs = append(recs, "Investigate network failures: check API endpoints and server status")
	}

	if a.AverageResponseTime > 2000 {
		issues = append(issues, fmt.Sprintf("Slow average response time: %.0fms", a.AverageResponseTime))
		recs = append(recs, "Optimize API response times: consider caching, a CDN, or server tuning")
	} else if a.AverageResponseTime > 1000 {
		recs = append(recs, "Consider optimizing response times for better user experience")
	}

	error4xx, error5xx := 0, 0
	for status, count := range a.StatusCodes {
		switch {
		case status >= 500:
			error5xx += count
		case status >= 400:
			error4xx += count
		}
	}
	if error4xx > 0 {
		issues = append(issues, fmt.Sprintf("Client errors detected: %d requests with 4xx status codes", error4xx))
		recs = append(recs, "Review client-side requests: check URLs, parameters, and authentication")
	}
	if error5xx > 0 {
		issues = append(issues, fmt.Sprintf("Server errors detected: %d requests with 5xx status codes", error5xx))
		recs = append(recs, "Investigate server-side issues: check server logs and health")
	}

	if len(a.Domains) > 10 {
		issues = append(issues, fmt.Sprintf("High number of domains: %d different domains contacted", len(a.Domains)))
		recs = append(recs, "Consider reducing external dependencies to improve loading performance")
	}

	if a.TotalRequests > 100 {
		recs = append(recs, "High request volume detected: consider request bundling or optimization")
	}
	if a.ResourceTypes["image"] > 20 {
		recs = append(recs, "Many image requests detected: consider image optimization and lazy loading")
	}
	if a.ResourceTypes["script"] > 15 {
		recs = append(recs, "Many script requests detected: consider script bundling and minification")
	}

	return issues, recs
}

// performanceScore is the fixed weighted composite in [0,100]. The
// response-time component is banded rather than continuous so marginal
// latency differences do not swing the score.
func performanceScore(successRate, avgResponseMS, cacheRate float64) float64 {
	var responseScore float64
	switch {
	case avgResponseMS < 500:
		responseScore = 40
	case avgResponseMS < 1000:
		responseScore = 30
	case avgResponseMS < 2000:
		responseScore = 20
	default:
		responseScore = 10
	}
	return successRate*40 + responseScore + cacheRate*20
}

// DomainAnalysis rolls the finished requests up per domain. Pending state
// never contributes.
func (m *Monitor) DomainAnalysis() map[string]DomainStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.domainAnalysisLocked()
}

func (m *Monitor) domainAnalysisLocked() map[string]DomainStats {
	type acc struct {
		stats DomainStats
		times []float64
	}
	accs := make(map[string]*acc)

	for _, req := range m.finished {
		domain := req.Domain()
		a, ok := accs[domain]
		if !ok {
			a = &acc{stats: DomainStats{
				ResourceTypes: map[string]int{},
				StatusCodes:   map[int]int{},
			}}
			accs[domain] = a
		}

		a.stats.TotalRequests++
		if req.IsSuccessful() {
			a.stats.SuccessfulRequests++
		} else if req.IsError() {
			a.stats.FailedRequests++
		}
		if req.Size != nil {
			a.stats.TotalBytes += *req.Size
		}
		if ms, ok := req.DurationMS(); ok {
			a.times = append(a.times, ms)
		}
		a.stats.ResourceTypes[req.ResourceType]++
		if req.Status != 0 {
			a.stats.StatusCodes[req.Status]++
		}
	}

	out := make(map[string]DomainStats, len(accs))
	for domain, a := range accs {
		if len(a.times) > 0 {
			sum, max, min := 0.0, a.times[0], a.times[0]
			for _, t := range a.times {
				sum += t
				if t > max {
					max = t
				}
				if t < min {
					min = t
				}
			}
			a.stats.AverageResponseTime = sum / float64(len(a.times))
			a.stats.MaxResponseTime = max
			a.stats.MinResponseTime = min
		}
		if a.stats.TotalRequests > 0 {
			a.stats.SuccessRate = float64(a.stats.SuccessfulRequests) / float64(a.stats.TotalRequests)
		}
		out[domain] = a.stats
	}
	return out
}

// ExportSummary assembles the reporting view under one lock acquisition so
// its counts agree with each other even while ingestion continues.
func (m *Monitor) ExportSummary() ExportSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summary := ExportSummary{
		MonitoringDuration:    time.Since(m.start).Seconds(),
		Analysis:              m.analysisLocked(),
		DomainAnalysis:        m.domainAnalysisLocked(),
		PendingRequests:       m.pendingCountLocked(),
		DistinctDomains:       len(m.domains),
		DistinctResourceTypes: len(m.resources),
	}

	recent := make([]*Request, len(m.finished))
	copy(recent, m.finished)
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].RequestedAt.Before(recent[j].RequestedAt)
	})
	if len(recent) > timelineLimit {
		recent = recent[len(recent)-timelineLimit:]
	}

	summary.Timeline = make([]TimelineEntry, 0, len(recent))
	for _, req := range recent {
		entry := TimelineEntry{
			Timestamp: req.RequestedAt,
			URL:       req.URL,
			Method:    req.Method,
			Status:    req.Status,
			Size:      req.Size,
			Error:     req.Error,
		}
		if ms, ok := req.DurationMS(); ok {
			d := ms
			entry.Duration = &d
		}
		summary.Timeline = append(summary.Timeline, entry)
	}
	return summary
}
