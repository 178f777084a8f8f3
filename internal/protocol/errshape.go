package protocol

import (
	"strings"

	"github.com/tidwall/gjson"
)

// errorMessagePaths are the known locations of a human-readable message in
// backend error payloads, in priority order. vLLM uses {"detail": ...} on
// health endpoints and {"error": {"message": ...}} on the OpenAI surface,
// llama.cpp uses a bare {"error": "..."} string, TGI uses {"message": ...}.
var errorMessagePaths = []string{"detail", "error", "error.message", "message"}

// ExtractErrorMessage pulls the backend's error message out of a raw
// response body, trying each known payload shape in fixed priority order.
// Returns the first string found, or "" when the body is not JSON or
// carries none of the known keys.
func ExtractErrorMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	for _, path := range errorMessagePaths {
		v := gjson.GetBytes(body, path)
		if v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}
	return ""
}

// IsLoadingMessage reports whether a backend error message indicates the
// model is still being loaded rather than broken
func IsLoadingMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "loading") || strings.Contains(lower, "initializing")
}

// IsChatTemplateMessage reports whether an error message indicates the
// model has no chat template configured. There is no canonical error code
// for this across server implementations, so a substring match is the best
// signal available.
func IsChatTemplateMessage(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "chat template")
}

// Truncate bounds a string to max bytes for inclusion in details and error
// strings
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
