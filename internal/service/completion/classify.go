package completion

import (
	"context"
	"errors"
	"net"
	"strings"
)

// failureClass buckets provider errors by how the gateway should react.
type failureClass int

const (
	classTransient failureClass = iota // retry with exponential backoff
	classMalformed                     // retry with a short fixed delay
	classContentPolicy                 // abandon the model, switch to fallback
	classAuth                          // fail immediately
	classUnknown                       // fail immediately
)

func (c failureClass) String() string {
	switch c {
	case classTransient:
		return "transient"
	case classMalformed:
		return "malformed_request"
	case classContentPolicy:
		return "content_policy"
	case classAuth:
		return "authentication"
	default:
		return "unknown"
	}
}

// classify maps a provider error onto a failure class. Providers surface
// most failures as plain errors with an embedded status or code, so the
// matching is textual beyond the few typed cases.
func classify(err error) failureClass {
	if err == nil {
		return classUnknown
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return classTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return classTransient
	}

	msg := strings.ToLower(err.Error())

	switch {
	case containsAny(msg,
		"content policy", "contentpolicyviolation", "content_filter", "content filter",
		"output_moderation", "sensitive"):
		return classContentPolicy

	case containsAny(msg,
		"unauthorized", "authenticationerror", "authentication", "invalid api key",
		"api key", "401", "forbidden", "403"):
		return classAuth

	case containsAny(msg,
		"rate limit", "ratelimit", "429", "too many requests",
		"timeout", "timed out", "deadline",
		"connection", "broken pipe", "eof",
		"500", "502", "503", "504", "internal server error", "server error",
		"service unavailable", "overloaded", "server_overloaded"):
		return classTransient

	case containsAny(msg,
		"badrequest", "bad request", "invalid request", "invalidparameter",
		"invalid parameter", "malformed", "400"):
		return classMalformed
	}

	return classUnknown
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
