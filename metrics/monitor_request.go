package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Retries accumulates per-request bookkeeping across the retrying client's
// attempts. It travels on the request context so HttpRetryHook can reach it.
type Retries struct {
	count          int
	lastStatusCode int
}

// statusTransportError labels attempts that never produced an HTTP response
// (refused connection, reset, timeout) in the failure counter.
const statusTransportError = 599

// MonitorRequest issues r through client and records request duration, retry
// count and failures against the target host. The bookkeeping value is added
// to r's own context, so deadlines and cancellation set by the caller stay
// in force for the whole retry loop.
func MonitorRequest(clientMetrics ClientMetrics, client *http.Client, r *http.Request) (*http.Response, error) {
	retries := &Retries{count: -1}
	req := r.WithContext(context.WithValue(r.Context(), RetriesKey, retries))

	start := time.Now()
	res, err := client.Do(req)
	duration := time.Since(start)

	if retries.lastStatusCode >= 400 {
		clientMetrics.FailureCount.WithLabelValues(req.URL.Host, fmt.Sprint(retries.lastStatusCode)).Inc()
		return res, err
	}

	clientMetrics.RequestDuration.WithLabelValues(req.URL.Host).Observe(duration.Seconds())
	clientMetrics.RetryCount.WithLabelValues(req.URL.Host).Set(float64(retries.count))
	if clientMetrics.RequestCount != nil {
		clientMetrics.RequestCount.WithLabelValues(req.URL.Host).Inc()
	}

	return res, err
}

// HttpRetryHook is the CheckRetry for retryablehttp clients built by this
// module. It counts attempts and remembers the last status seen, then defers
// the actual retry decision to the default policy. Requests issued without
// MonitorRequest pass through uncounted.
func HttpRetryHook(ctx context.Context, res *http.Response, err error) (bool, error) {
	if retries, ok := ctx.Value(RetriesKey).(*Retries); ok {
		if res == nil {
			retries.lastStatusCode = statusTransportError
		} else {
			retries.lastStatusCode = res.StatusCode
		}
		retries.count++
	}
	return retryablehttp.DefaultRetryPolicy(ctx, res, err)
}
