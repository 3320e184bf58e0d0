package metrics

import (
	"time"

	"github.com/garagebay/staffgate/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess      = "success"
	ResultError        = "error"
	ResultNoop         = "noop"
	ResultDemoFallback = "demo_fallback"
	ResultSuperseded   = "superseded"
)

// AuthMetric captures one authorization operation for metric emission.
type AuthMetric struct {
	Operation  string // login, logout, refresh, resolve, change_password
	Result     string
	ErrorClass string
}

// EmitAuth emits standardised authorization operation metrics.
func EmitAuth(sink statsd.Sink, in AuthMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"operation": in.Operation,
		"result":    in.Result,
	}

	if in.ErrorClass != "" && in.Result == ResultError {
		tags["error_class"] = in.ErrorClass
	}

	sink.Count("auth.operation", 1, tags)
}

// EmitGuard counts one route guard decision.
func EmitGuard(sink statsd.Sink, state, route string) {
	if sink == nil {
		return
	}
	sink.Count("auth.guard", 1, map[string]string{
		"state": state,
		"route": route,
	})
}

// EmitResolve times one identity resolution against the staff backend.
func EmitResolve(sink statsd.Sink, operation string, d time.Duration, failed bool) {
	if sink == nil {
		return
	}
	result := ResultSuccess
	if failed {
		result = ResultError
	}
	sink.Timing("auth.resolve.duration", d, map[string]string{
		"operation": operation,
		"result":    result,
	})
}

// EmitSessionCache reports the in-memory session count after a sweep.
func EmitSessionCache(sink statsd.Sink, cached, swept int) {
	if sink == nil {
		return
	}
	sink.Gauge("auth.sessions.cached", float64(cached), nil)
	if swept > 0 {
		sink.Count("auth.sessions.swept", int64(swept), nil)
	}
}

// CloneTags creates a shallow copy of a tag map, filtering out empty keys.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		if k == "" {
			continue
		}
		out[k] = v
	}
	return out
}
