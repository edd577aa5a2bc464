package audit

import "strings"

// Sentinel replaces redacted values in audited payloads.
const Sentinel = "[REDACTED]"

// sensitiveKeys are matched as case-insensitive substrings of payload keys.
// Emails, phone numbers, card data, and credentials never reach the audit
// sink in the clear.
var sensitiveKeys = []string{
	"password",
	"secret",
	"token",
	"api_key",
	"apikey",
	"authorization",
	"email",
	"phone",
	"card",
	"cvv",
	"pan",
	"iban",
}

// sensitiveKey reports whether a payload key must be redacted.
func sensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// Redact returns a copy of payload with sensitive values replaced by
// Sentinel, descending into nested maps and slices. The input is never
// mutated; callers may keep using the original.
func Redact(payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		if sensitiveKey(k) {
			out[k] = Sentinel
			continue
		}
		out[k] = redactValue(v)
	}
	return out
}

func redactValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return Redact(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = redactValue(e)
		}
		return out
	default:
		return v
	}
}

// RedactStrings is Redact for flat string maps, used for echo attrs and
// booking modify fields.
func RedactStrings(payload map[string]string) map[string]string {
	if payload == nil {
		return nil
	}
	out := make(map[string]string, len(payload))
	for k, v := range payload {
		if sensitiveKey(k) {
			out[k] = Sentinel
		} else {
			out[k] = v
		}
	}
	return out
}
