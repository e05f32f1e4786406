package client

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"testing"

	"github.com/muurk/forcedmode/internal/history"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func dialErr(inner error) error {
	return &url.Error{
		Op:  "Post",
		URL: "http://127.0.0.1:8080/api/v1/orchestrate",
		Err: &net.OpError{Op: "dial", Net: "tcp", Err: inner},
	}
}

func TestClassifyNetworkError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantType  ErrorType
		wantSub   NetworkErrorSubtype
		retryable bool
	}{
		{"timeout", dialErr(timeoutError{}), ErrTypeTimeout, NetworkErrorTimeout, true},
		{"refused", dialErr(syscall.ECONNREFUSED), ErrTypeConnectionRefused, NetworkErrorConnectionRefused, true},
		{"host unreachable", dialErr(syscall.EHOSTUNREACH), ErrTypeNetwork, NetworkErrorHostUnreachable, true},
		{"network unreachable", dialErr(syscall.ENETUNREACH), ErrTypeNetwork, NetworkErrorNetworkUnreachable, true},
		{"dns", &net.DNSError{Err: "no such host", Name: "nowhere.local", IsNotFound: true}, ErrTypeDNS, NetworkErrorDNS, false},
		{"other", errors.New("connection reset"), ErrTypeNetwork, NetworkErrorGeneral, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cErr := ClassifyNetworkError(tt.err, "http://127.0.0.1:8080")
			if cErr == nil {
				t.Fatal("Expected Error, got nil")
			}
			if cErr.Type != tt.wantType {
				t.Errorf("Expected error type %v, got %v", tt.wantType, cErr.Type)
			}
			if cErr.NetworkSubtype != tt.wantSub {
				t.Errorf("Expected network subtype %v, got %v", tt.wantSub, cErr.NetworkSubtype)
			}
			if cErr.Retryable != tt.retryable {
				t.Errorf("Expected retryable %v, got %v", tt.retryable, cErr.Retryable)
			}
			if cErr.Server != "http://127.0.0.1:8080" {
				t.Errorf("Expected server to be kept, got %q", cErr.Server)
			}
		})
	}

	if ClassifyNetworkError(nil, "") != nil {
		t.Error("Expected nil for nil error")
	}
}

func TestNewStatusError(t *testing.T) {
	tests := []struct {
		status    int
		wantType  ErrorType
		retryable bool
	}{
		{http.StatusConflict, ErrTypeBusy, true},
		{http.StatusTeapot, ErrTypeTransition, false},
		{http.StatusInternalServerError, ErrTypeHTTP, true},
		{http.StatusTooManyRequests, ErrTypeHTTP, true},
		{http.StatusBadRequest, ErrTypeHTTP, false},
		{http.StatusNotFound, ErrTypeHTTP, false},
	}

	for _, tt := range tests {
		cErr := NewStatusError(tt.status, "msg")
		if cErr.Type != tt.wantType {
			t.Errorf("status %d: Expected type %v, got %v", tt.status, tt.wantType, cErr.Type)
		}
		if cErr.Retryable != tt.retryable {
			t.Errorf("status %d: Expected retryable %v, got %v", tt.status, tt.retryable, cErr.Retryable)
		}
		if cErr.StatusCode != tt.status {
			t.Errorf("Expected status %d, got %d", tt.status, cErr.StatusCode)
		}
	}
}

func TestPredicatesSeeThroughWrapping(t *testing.T) {
	busy := fmt.Errorf("run: %w", NewStatusError(http.StatusConflict, "busy"))
	failed := fmt.Errorf("run: %w", NewStatusError(http.StatusTeapot, "failed"))

	if !IsBusy(busy) || IsTransitionFailure(busy) {
		t.Error("Expected wrapped 409 to be busy only")
	}
	if !IsTransitionFailure(failed) || IsBusy(failed) {
		t.Error("Expected wrapped 418 to be transition failure only")
	}
	if !IsRetryable(busy) || IsRetryable(failed) {
		t.Error("Expected busy retryable and transition failure not")
	}
	if IsBusy(errors.New("plain")) || IsRetryable(errors.New("plain")) || IsNetworkError(nil) {
		t.Error("Expected plain errors to match nothing")
	}
}

func TestErrorString(t *testing.T) {
	cause := errors.New("boom")
	err := &Error{Type: ErrTypeNetwork, Message: "request failed", Err: cause}

	if got := err.Error(); got != "Network Error: request failed (caused by: boom)" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(err, cause) {
		t.Error("Expected Unwrap to expose the cause")
	}
	if got := (&Error{Type: ErrTypeBusy, Message: "in use"}).Error(); got != "Device Busy: in use" {
		t.Errorf("Error() = %q", got)
	}
	if got := ErrorType(99).String(); got != "ErrorType(99)" {
		t.Errorf("String() = %q", got)
	}
}

func TestGetTroubleshootingHint(t *testing.T) {
	tests := []struct {
		err      error
		contains string
	}{
		{&Error{Type: ErrTypeConnectionRefused, Server: "http://h:1"}, "forcedmode-server serve"},
		{&Error{Type: ErrTypeBusy}, "--retries"},
		{&Error{Type: ErrTypeTransition}, "returned to standby"},
		{&Error{Type: ErrTypeTimeout}, "--timeout"},
		{&Error{Type: ErrTypeHTTP, StatusCode: 500, RequestID: "req-1"}, "req-1"},
		{&Error{Type: ErrTypeHTTP, StatusCode: 400}, "HTTP error 400"},
		{&Error{Type: ErrTypeNetwork, NetworkSubtype: NetworkErrorHostUnreachable}, "not reachable"},
		{errors.New("plain"), "unexpected error"},
	}

	for _, tt := range tests {
		if hint := GetTroubleshootingHint(tt.err); !strings.Contains(hint, tt.contains) {
			t.Errorf("hint for %v = %q, want it to contain %q", tt.err, hint, tt.contains)
		}
	}
}

func TestGetShortErrorMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&Error{Type: ErrTypeBusy}, "Device busy - in use by another request"},
		{&Error{Type: ErrTypeTransition}, "Transition failed - device preserved"},
		{&Error{Type: ErrTypeTransition, Run: &history.Run{FailedTransition: "operate"}}, "operate transition failed - device preserved"},
		{&Error{Type: ErrTypeHTTP, StatusCode: 503}, "Server error (HTTP 503)"},
		{&Error{Type: ErrTypeConnectionRefused}, "Server refused connection - is it running?"},
		{errors.New("plain"), "plain"},
	}

	for _, tt := range tests {
		if got := GetShortErrorMessage(tt.err); got != tt.want {
			t.Errorf("GetShortErrorMessage(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
