package adapter

import (
	"context"
	"errors"
	"strings"
)

// Class buckets provider failures for the router's retry and failover
// decisions.
type Class string

const (
	ClassRateLimited Class = "rate_limited"
	ClassAuth        Class = "auth"
	ClassUnavailable Class = "unavailable"
	ClassNetwork     Class = "network"
	ClassInvalid     Class = "invalid_request"
	ClassUnknown     Class = "unknown"
)

// Transient reports whether a retry against the same candidate can help.
func (c Class) Transient() bool {
	return c == ClassRateLimited || c == ClassNetwork
}

var rateLimitPatterns = []string{
	"rate limit", "rate-limit", "ratelimit", "too many requests", "429",
	"throttled", "throttling", "quota exceeded", "insufficient_quota",
}

var authPatterns = []string{
	"401", "403", "unauthorized", "forbidden", "invalid api key",
	"invalid_api_key", "authentication", "invalid x-api-key", "credential",
}

var unavailablePatterns = []string{
	"500", "502", "503", "504", "service unavailable", "overloaded",
	"temporarily unavailable", "bad gateway", "capacity", "try again later",
}

var networkPatterns = []string{
	"timeout", "timed out", "deadline exceeded", "connection refused",
	"connection reset", "broken pipe", "no such host", "eof",
	"network is unreachable",
}

var invalidPatterns = []string{
	"400", "invalid request", "model not found", "invalid model",
	"context length", "maximum context", "content policy",
}

// Classify maps a provider error to a failure class by message text;
// langchaingo surfaces provider failures as flat errors, so status codes
// only appear inline.
func Classify(err error) Class {
	if err == nil {
		return ClassUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassNetwork
	}
	msg := strings.ToLower(err.Error())
	switch {
	case matchesAny(msg, rateLimitPatterns):
		return ClassRateLimited
	case matchesAny(msg, authPatterns):
		return ClassAuth
	case matchesAny(msg, unavailablePatterns):
		return ClassUnavailable
	case matchesAny(msg, networkPatterns):
		return ClassNetwork
	case matchesAny(msg, invalidPatterns):
		return ClassInvalid
	default:
		return ClassUnknown
	}
}

func matchesAny(msg string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
