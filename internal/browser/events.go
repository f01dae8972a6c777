package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"webscope/internal/console"
	"webscope/internal/network"
	"webscope/internal/session"
)

type eventThrottler struct {
	interval time.Duration
	mu       sync.Mutex
	last     map[string]time.Time
}

func newEventThrottler(ms int) *eventThrottler {
	if ms <= 0 {
		return nil
	}
	return &eventThrottler{
		interval: time.Duration(ms) * time.Millisecond,
		last:     make(map[string]time.Time),
	}
}

func (t *eventThrottler) Allow(key string) bool {
	if t == nil {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	if last, ok := t.last[key]; ok {
		if now.Sub(last) < t.interval {
			return false
		}
	}
	t.last[key] = now
	return true
}

// trackerJS is installed on every new document. It buffers clicks and
// inputs for the pump and accumulates largest contentful paint and layout
// shift, which the browser only exposes through observers.
const trackerJS = `
(() => {
	const w = window;
	if (w.__webscopeHooked) return;
	w.__webscopeHooked = true;
	w.__webscopeEvents = [];
	w.__webscopeVitals = { lcp: null, cls: 0 };

	try {
		new PerformanceObserver((list) => {
			for (const entry of list.getEntries()) {
				w.__webscopeVitals.lcp = entry.startTime;
			}
		}).observe({ type: 'largest-contentful-paint', buffered: true });
	} catch (e) {}

	try {
		new PerformanceObserver((list) => {
			for (const entry of list.getEntries()) {
				w.__webscopeVitals.cls += entry.value;
			}
		}).observe({ type: 'layout-shift', buffered: true });
	} catch (e) {}

	document.addEventListener('click', (ev) => {
		try {
			const target = ev.target || {};
			const id = target.id || target.name || (target.tagName ? target.tagName.toLowerCase() : '');
			w.__webscopeEvents.push({ type: 'click', id, ts: Date.now() });
		} catch (e) {}
	}, true);

	document.addEventListener('input', (ev) => {
		try {
			const target = ev.target || {};
			const id = target.id || target.name || '';
			const value = target.value || '';
			w.__webscopeEvents.push({ type: 'input', id, value, ts: Date.now() });
		} catch (e) {}
	}, true);

	document.addEventListener('change', (ev) => {
		try {
			const target = ev.target || {};
			const id = target.id || target.name || '';
			const value = target.value || '';
			w.__webscopeEvents.push({ type: 'input', id, value, ts: Date.now() });
		} catch (e) {}
	}, true);
})();
`

const drainJS = `
() => {
	const buf = Array.isArray(window.__webscopeEvents) ? window.__webscopeEvents : [];
	window.__webscopeEvents = [];
	return buf;
}
`

// pendingResponse parks a response between responseReceived and
// loadingFinished so the final wire size and download time can be
// attached before the session sees it.
type pendingResponse struct {
	input      network.ResponseInput
	receivedAt time.Time
}

// observer routes DevTools events for one page into one session.
type observer struct {
	logger    *zap.Logger
	sess      *session.Session
	throttler *eventThrottler

	mu        sync.Mutex
	memCache  map[string]bool
	responses map[string]*pendingResponse
}

// Observe subscribes the page's console, exception, network, and
// navigation events and routes them into the session. Interaction
// tracking is injected into every new document and drained on a ticker.
// The returned wait func blocks until ctx ends, then commits any
// responses still parked without a loadingFinished.
func (d *Driver) Observe(ctx context.Context, page *rod.Page, sess *session.Session) func() {
	obs := &observer{
		logger:    d.logger,
		sess:      sess,
		throttler: newEventThrottler(d.cfg.EventThrottleMs),
		memCache:  make(map[string]bool),
		responses: make(map[string]*pendingResponse),
	}

	if _, err := page.EvalOnNewDocument(trackerJS); err != nil {
		d.logger.Warn("interaction tracker injection failed", zap.Error(err))
	}

	waitNav := page.Context(ctx).EachEvent(obs.onNavigated)
	waitRest := page.Context(ctx).EachEvent(
		obs.onConsole,
		obs.onException,
		obs.onRequest,
		obs.onServedFromCache,
		obs.onResponse,
		obs.onLoadingFinished,
		obs.onLoadingFailed,
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		waitNav()
		return nil
	})
	eg.Go(func() error {
		waitRest()
		return nil
	})
	eg.Go(func() error {
		obs.pump(egCtx, page)
		return nil
	})

	return func() {
		_ = eg.Wait()
		obs.flush()
	}
}

func (o *observer) onNavigated(ev *proto.PageFrameNavigated) {
	if ev.Frame == nil || ev.Frame.ParentID != "" {
		return // subframe
	}
	o.sess.RecordNavigation(ev.Frame.URL)
}

func (o *observer) onConsole(ev *proto.RuntimeConsoleAPICalled) {
	o.sess.RecordConsole(console.MessageInput{
		Level:    consoleLevel(ev.Type),
		Text:     stringifyConsoleArgs(ev.Args),
		Location: stackLocation(ev.StackTrace),
	})
}

func (o *observer) onException(ev *proto.RuntimeExceptionThrown) {
	message, stack := exceptionDetail(ev.ExceptionDetails)
	o.sess.RecordPageError(message, stack)
}

func (o *observer) onRequest(ev *proto.NetworkRequestWillBeSent) {
	if ev.Request == nil {
		return
	}
	o.sess.RecordRequest(network.RequestInput{
		RequestID:    string(ev.RequestID),
		URL:          ev.Request.URL,
		Method:       ev.Request.Method,
		Headers:      flattenHeaders(ev.Request.Headers),
		ResourceType: strings.ToLower(string(ev.Type)),
		Initiator:    requestInitiator(ev.Initiator),
	})
}

func (o *observer) onServedFromCache(ev *proto.NetworkRequestServedFromCache) {
	o.mu.Lock()
	o.memCache[string(ev.RequestID)] = true
	o.mu.Unlock()
}

func (o *observer) onResponse(ev *proto.NetworkResponseReceived) {
	if ev.Response == nil {
		return
	}
	id := string(ev.RequestID)
	headers := flattenHeaders(ev.Response.Headers)

	o.mu.Lock()
	fromMemory := o.memCache[id]
	delete(o.memCache, id)
	o.responses[id] = &pendingResponse{
		receivedAt: time.Now(),
		input: network.ResponseInput{
			Status:            ev.Response.Status,
			Headers:           headers,
			Size:              parseContentLength(headers),
			FromDiskCache:     ev.Response.FromDiskCache,
			FromMemoryCache:   fromMemory,
			FromServiceWorker: ev.Response.FromServiceWorker,
			Timing:            convertTiming(ev.Response.Timing),
		},
	}
	o.mu.Unlock()
}

func (o *observer) onLoadingFinished(ev *proto.NetworkLoadingFinished) {
	id := string(ev.RequestID)
	o.mu.Lock()
	pr, ok := o.responses[id]
	delete(o.responses, id)
	o.mu.Unlock()
	if !ok {
		return
	}

	download := float64(time.Since(pr.receivedAt)) / float64(time.Millisecond)
	if pr.input.Timing != nil {
		pr.input.Timing.ContentDownload = &download
		if pr.input.Timing.TotalTime != nil {
			total := *pr.input.Timing.TotalTime + download
			pr.input.Timing.TotalTime = &total
		}
	}
	if wire := int64(ev.EncodedDataLength); wire > 0 && headerValue(pr.input.Headers, "Content-Encoding") != "" {
		pr.input.CompressedSize = &wire
	}
	o.sess.RecordResponse(id, pr.input)
}

func (o *observer) onLoadingFailed(ev *proto.NetworkLoadingFailed) {
	id := string(ev.RequestID)
	o.mu.Lock()
	delete(o.responses, id)
	delete(o.memCache, id)
	o.mu.Unlock()
	o.sess.RecordFailure(id, ev.ErrorText, string(ev.BlockedReason))
}

// flush commits responses whose loadingFinished never arrived, typically
// because monitoring stopped mid download.
func (o *observer) flush() {
	o.mu.Lock()
	parked := o.responses
	o.responses = make(map[string]*pendingResponse)
	o.mu.Unlock()
	for id, pr := range parked {
		o.sess.RecordResponse(id, pr.input)
	}
}

func (o *observer) pump(ctx context.Context, page *rod.Page) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.drainInteractions(ctx, page)
		}
	}
}

func (o *observer) drainInteractions(ctx context.Context, page *rod.Page) {
	res, err := page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           drainJS,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil || res == nil || res.Value.Nil() {
		return
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return
	}
	var events []struct {
		Type  string  `json:"type"`
		ID    string  `json:"id"`
		Value string  `json:"value"`
		TS    float64 `json:"ts"`
	}
	if err := json.Unmarshal(raw, &events); err != nil {
		return
	}

	for _, ev := range events {
		if !o.throttler.Allow(ev.Type) {
			continue
		}
		detail := map[string]any{"target": ev.ID}
		if ev.Type == "input" && ev.Value != "" {
			detail["value"] = ev.Value
		}
		o.sess.RecordInteraction(ev.Type, detail)
	}
}

func consoleLevel(t proto.RuntimeConsoleAPICalledType) console.Level {
	switch t {
	case proto.RuntimeConsoleAPICalledTypeError:
		return console.LevelError
	case proto.RuntimeConsoleAPICalledTypeWarning:
		return console.LevelWarning
	case proto.RuntimeConsoleAPICalledTypeInfo:
		return console.LevelInfo
	case proto.RuntimeConsoleAPICalledTypeDebug:
		return console.LevelDebug
	case proto.RuntimeConsoleAPICalledTypeAssert:
		return console.LevelAssert
	default:
		return console.LevelLog
	}
}

func stringifyConsoleArgs(args []*proto.RuntimeRemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		if a == nil {
			continue
		}
		if !a.Value.Nil() {
			parts = append(parts, a.Value.String())
			continue
		}
		if a.Description != "" {
			parts = append(parts, a.Description)
		}
	}
	return strings.Join(parts, " ")
}

// stackLocation picks the first page-owned frame of a stack trace. Frames
// from extension or devtools scripts are skipped.
func stackLocation(st *proto.RuntimeStackTrace) string {
	if st == nil || len(st.CallFrames) == 0 {
		return ""
	}
	frame := st.CallFrames[0]
	for _, f := range st.CallFrames {
		if f.URL != "" && !isInternalScript(f.URL) {
			frame = f
			break
		}
	}
	if frame.URL == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", frame.URL, frame.LineNumber)
}

// exceptionDetail flattens DevTools exception details into a message and
// a stack text. Chrome packs both into the exception description.
func exceptionDetail(ed *proto.RuntimeExceptionDetails) (message, stack string) {
	if ed == nil {
		return "", ""
	}
	message = ed.Text
	if ed.Exception != nil && ed.Exception.Description != "" {
		stack = ed.Exception.Description
		if first, _, _ := strings.Cut(stack, "\n"); first != "" {
			message = first
		}
	}
	if message == "" && ed.URL != "" {
		message = fmt.Sprintf("exception at %s:%d", ed.URL, ed.LineNumber)
	}
	return message, stack
}

func requestInitiator(in *proto.NetworkInitiator) map[string]any {
	if in == nil {
		return nil
	}
	out := map[string]any{"type": string(in.Type)}
	if in.URL != "" {
		out["url"] = in.URL
	}
	if in.Stack != nil && len(in.Stack.CallFrames) > 0 {
		frame := in.Stack.CallFrames[0]
		script := frame.URL
		line := frame.LineNumber
		for _, f := range in.Stack.CallFrames {
			if f.URL != "" && !isInternalScript(f.URL) {
				script = f.URL
				line = f.LineNumber
				break
			}
		}
		if script != "" {
			out["script"] = fmt.Sprintf("%s:%d", script, line)
		}
	}
	return out
}

func flattenHeaders(h proto.NetworkHeaders) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v.Str()
	}
	return out
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func parseContentLength(headers map[string]string) *int64 {
	raw := headerValue(headers, "Content-Length")
	if raw == "" {
		return nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return nil
	}
	return &n
}

// convertTiming maps DevTools resource timing offsets to phase spans.
// Offsets are milliseconds relative to the request start; -1 marks a
// phase that did not happen. The download span is unknown until
// loadingFinished and is attached there.
func convertTiming(t *proto.NetworkResourceTiming) *network.Timing {
	if t == nil {
		return nil
	}
	timing := &network.Timing{
		DNSLookup:    span(t.DNSStart, t.DNSEnd),
		TCPConnect:   span(t.ConnectStart, t.ConnectEnd),
		TLSHandshake: span(t.SslStart, t.SslEnd),
		RequestSent:  span(t.SendStart, t.SendEnd),
		Waiting:      span(t.SendEnd, t.ReceiveHeadersEnd),
	}
	if t.ReceiveHeadersEnd >= 0 {
		total := t.ReceiveHeadersEnd
		timing.TotalTime = &total
	}
	return timing
}

func span(start, end float64) *float64 {
	if start < 0 || end < 0 || end < start {
		return nil
	}
	v := end - start
	return &v
}

func isInternalScript(url string) bool {
	internalPrefixes := []string{
		"chrome://",
		"chrome-extension://",
		"devtools://",
		"about:",
		"data:",
		"blob:",
	}
	for _, prefix := range internalPrefixes {
		if strings.HasPrefix(url, prefix) {
			return true
		}
	}
	return false
}
