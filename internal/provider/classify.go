package provider

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type Kind string

const (
	Success           Kind = "success"
	AuthExpired       Kind = "auth_expired"
	RateLimited       Kind = "rate_limited"
	StaleConnection   Kind = "stale_connection"
	MalformedResponse Kind = "malformed_response"
	UnknownError      Kind = "unknown_error"
)

// Provider error codes observed in the aggregation API.
const (
	codeCredentialsExpired = "credentials_expired"
	codeConnectionNotFound = "connection_not_found"
	codeRateLimited        = "rate_limited"
)

const bodySampleBytes = 256

// Outcome is the single interpretation of a provider reply. Nothing past
// this point inspects status codes or raw bodies.
type Outcome struct {
	Kind         Kind
	Message      string
	ProviderCode string
	RetryAfter   time.Duration
	BodySample   string
}

func (o Outcome) IsSuccess() bool {
	return o.Kind == Success
}

type errorEnvelope struct {
	Error struct {
		Code              string `json:"code"`
		Message           string `json:"message"`
		RetryAfterSeconds int    `json:"retry_after_seconds"`
	} `json:"error"`
}

// Classify maps a raw provider reply to a typed outcome, applying the rules
// in fixed priority order. On Success the body is decoded into dest when
// dest is non-nil; a 2xx body that does not match the expected schema is
// malformed, not a success.
func Classify(raw RawResponse, dest any) Outcome {
	contentType := raw.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(contentType, "application/json") {
		return malformed(raw, fmt.Sprintf("provider returned %s with status %d", contentType, raw.StatusCode))
	}

	var env errorEnvelope
	body := bytes.TrimSpace(raw.Body)
	if len(body) > 0 {
		if err := json.Unmarshal(body, &env); err != nil {
			return malformed(raw, fmt.Sprintf("provider body is not valid JSON (status %d)", raw.StatusCode))
		}
	}

	switch {
	case raw.StatusCode == http.StatusUnauthorized,
		raw.StatusCode == http.StatusForbidden,
		env.Error.Code == codeCredentialsExpired:
		return Outcome{
			Kind:         AuthExpired,
			ProviderCode: env.Error.Code,
			Message:      fmt.Sprintf("provider credentials expired (HTTP %d), re-authorization required", raw.StatusCode),
		}
	case raw.StatusCode == http.StatusNotFound,
		env.Error.Code == codeConnectionNotFound:
		return Outcome{
			Kind:         StaleConnection,
			ProviderCode: env.Error.Code,
			Message:      "provider connection no longer exists",
		}
	case raw.StatusCode == http.StatusTooManyRequests,
		env.Error.Code == codeRateLimited:
		return Outcome{
			Kind:         RateLimited,
			ProviderCode: env.Error.Code,
			RetryAfter:   retryAfterHint(raw, env),
			Message:      "provider rate limit reached",
		}
	case raw.StatusCode >= 200 && raw.StatusCode < 300:
		if dest != nil {
			if len(body) == 0 {
				return malformed(raw, "provider returned an empty success body")
			}
			if err := json.Unmarshal(body, dest); err != nil {
				return malformed(raw, "provider success body does not match the expected schema")
			}
		}
		return Outcome{Kind: Success}
	default:
		message := env.Error.Message
		if message == "" {
			message = "unexpected provider response"
		}
		return Outcome{
			Kind:         UnknownError,
			ProviderCode: env.Error.Code,
			Message:      fmt.Sprintf("%s (HTTP %d)", message, raw.StatusCode),
		}
	}
}

func retryAfterHint(raw RawResponse, env errorEnvelope) time.Duration {
	if header := raw.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	if env.Error.RetryAfterSeconds > 0 {
		return time.Duration(env.Error.RetryAfterSeconds) * time.Second
	}
	return 0
}

func malformed(raw RawResponse, message string) Outcome {
	sample := raw.Body
	if len(sample) > bodySampleBytes {
		sample = sample[:bodySampleBytes]
	}
	return Outcome{
		Kind:       MalformedResponse,
		Message:    message,
		BodySample: string(sample),
	}
}
