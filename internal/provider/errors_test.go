package provider

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyKinds(t *testing.T) {
	tests := []struct {
		msg    string
		kind   ErrorKind
		reason string
	}{
		{"googleapi: Error 403: permission denied", KindCredential, "unauthorized"},
		{"requested entity was not found", KindCredential, "unauthorized"},
		{"API key not valid. Please pass a valid API key.", KindCredential, "unauthorized"},
		{"status 401: invalid credentials", KindCredential, "unauthorized"},
		{"429 Too Many Requests", KindTransient, "rate_limited"},
		{"RESOURCE_EXHAUSTED: quota exceeded", KindTransient, "rate_limited"},
		{"503 Service Unavailable", KindTransient, "unavailable"},
		{"model is currently loading", KindTransient, "unavailable"},
		{"context deadline exceeded", KindTransient, "timeout"},
		{"dial tcp: connection refused", KindTransient, "timeout"},
		{"unexpected end of JSON input", KindMalformed, "bad_response"},
		{"json: cannot unmarshal string into Go value", KindMalformed, "bad_response"},
		{"something completely novel went wrong", KindTransient, "unknown"},
	}

	for _, tc := range tests {
		got := Classify("test", errors.New(tc.msg))
		if got.Kind != tc.kind {
			t.Errorf("Classify(%q) kind = %s, want %s", tc.msg, got.Kind, tc.kind)
		}
		if got.Reason != tc.reason {
			t.Errorf("Classify(%q) reason = %s, want %s", tc.msg, got.Reason, tc.reason)
		}
	}
}

func TestClassifyPreservesExistingError(t *testing.T) {
	orig := NewError("gemini", KindMalformed, "empty_response", errors.New("no image data"))
	wrapped := fmt.Errorf("resolve: %w", orig)

	got := Classify("other", wrapped)
	if got != orig {
		t.Error("expected existing classified error to pass through unchanged")
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(NewError("p", KindTransient, "rate_limited", nil)) {
		t.Error("transient errors should be retryable")
	}
	if Retryable(NewError("p", KindCredential, "unauthorized", nil)) {
		t.Error("credential errors must not be retryable")
	}
	if Retryable(NewError("p", KindMalformed, "bad_response", nil)) {
		t.Error("malformed errors must not be retryable")
	}
	if Retryable(errors.New("plain")) {
		t.Error("unclassified errors must not be retryable")
	}
}

func TestKindOfUnwrapsThroughWrapping(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewError("hf", KindCredential, "unauthorized", nil))
	if KindOf(err) != KindCredential {
		t.Errorf("KindOf = %s, want %s", KindOf(err), KindCredential)
	}
	if KindOf(nil) != "" {
		t.Error("KindOf(nil) should be empty")
	}
}

func TestLanguageValid(t *testing.T) {
	for _, l := range Languages {
		if !l.Valid() {
			t.Errorf("%s should be valid", l)
		}
	}
	if Language("FRA").Valid() {
		t.Error("FRA should not be valid")
	}
}
