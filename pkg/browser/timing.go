package browser

import (
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/rpacore/pkg/performance"
)

// timingScript reads the Navigation and Resource Timing entries of the
// current document. Times are milliseconds, sizes bytes.
const timingScript = `() => {
	const nav = performance.getEntriesByType('navigation')[0];
	const paint = performance.getEntriesByName('first-paint')[0];
	const res = performance.getEntriesByType('resource');
	return {
		load: nav ? nav.loadEventEnd - nav.startTime : 0,
		dcl: nav ? nav.domContentLoadedEventEnd - nav.startTime : 0,
		paint: paint ? paint.startTime : 0,
		size: nav ? nav.decodedBodySize : 0,
		transfer: (nav ? nav.transferSize : 0) + res.reduce((s, r) => s + (r.transferSize || 0), 0),
		requests: res.length + (nav ? 1 : 0),
		failed: res.filter(r => r.responseStatus >= 400).length,
		memory: performance.memory ? performance.memory.usedJSHeapSize : 0,
	};
}`

// PageTiming samples the page's timing data into a browser metric. The URL
// and viewport are filled in; missing entries stay zero.
func PageTiming(page playwright.Page) (performance.BrowserMetric, error) {
	m := performance.BrowserMetric{PageURL: page.URL()}
	if vp := page.ViewportSize(); vp != nil {
		m.ViewportSize = Viewport{Width: vp.Width, Height: vp.Height}.String()
	}

	raw, err := page.Evaluate(timingScript)
	if err != nil {
		return m, fmt.Errorf("failed to read page timing: %w", err)
	}
	values, ok := raw.(map[string]interface{})
	if !ok {
		return m, fmt.Errorf("unexpected page timing result %T", raw)
	}

	num := func(key string) float64 {
		switch v := values[key].(type) {
		case float64:
			return v
		case int:
			return float64(v)
		case int64:
			return float64(v)
		}
		return 0
	}
	ms := func(key string) time.Duration {
		if v := num(key); v > 0 {
			return time.Duration(v * float64(time.Millisecond))
		}
		return 0
	}

	m.PageLoadTime = ms("load")
	m.DOMContentLoadedTime = ms("dcl")
	m.FirstPaintTime = ms("paint")
	m.PageSizeKB = num("size") / 1024
	m.TotalTransferSizeKB = num("transfer") / 1024
	m.NetworkRequests = int(num("requests"))
	m.NetworkFailedRequests = int(num("failed"))
	m.MemoryUsageMB = num("memory") / (1024 * 1024)
	return m, nil
}
