package client

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"

	"github.com/muurk/forcedmode/internal/history"
)

// ErrorType represents the category of error that occurred
type ErrorType int

const (
	// ErrTypeNetwork indicates a network-level error (connection reset, unreachable, etc.)
	ErrTypeNetwork ErrorType = iota
	// ErrTypeTimeout indicates a request timeout
	ErrTypeTimeout
	// ErrTypeConnectionRefused indicates nothing is listening at the server address
	ErrTypeConnectionRefused
	// ErrTypeDNS indicates a DNS resolution failure
	ErrTypeDNS
	// ErrTypeBusy indicates the device was held by another request (HTTP 409)
	ErrTypeBusy
	// ErrTypeTransition indicates a transition failed and the device was preserved (HTTP 418)
	ErrTypeTransition
	// ErrTypeHTTP indicates any other non-2xx response
	ErrTypeHTTP
	// ErrTypeParse indicates a malformed response body
	ErrTypeParse
	// ErrTypeUnknown indicates an unknown or unexpected error
	ErrTypeUnknown
)

// NetworkErrorSubtype provides more specific network error classification
type NetworkErrorSubtype int

const (
	NetworkErrorGeneral NetworkErrorSubtype = iota
	NetworkErrorTimeout
	NetworkErrorConnectionRefused
	NetworkErrorDNS
	NetworkErrorHostUnreachable
	NetworkErrorNetworkUnreachable
)

func (et ErrorType) String() string {
	switch et {
	case ErrTypeNetwork:
		return "Network Error"
	case ErrTypeTimeout:
		return "Timeout"
	case ErrTypeConnectionRefused:
		return "Connection Refused"
	case ErrTypeDNS:
		return "DNS Error"
	case ErrTypeBusy:
		return "Device Busy"
	case ErrTypeTransition:
		return "Transition Failed"
	case ErrTypeHTTP:
		return "HTTP Error"
	case ErrTypeParse:
		return "Parse Error"
	case ErrTypeUnknown:
		return "Unknown Error"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// Error is returned by every Client method that talks to the server.
type Error struct {
	Type           ErrorType           // Category of error
	Message        string              // Human-readable error message
	StatusCode     int                 // HTTP status code (if applicable)
	Err            error               // Underlying error (if any)
	NetworkSubtype NetworkErrorSubtype // More specific network error type
	Server         string              // Server base URL (for context)
	RequestID      string              // X-Request-ID of the failed request
	Run            *history.Run        // Run record returned with 409/418 responses
	Retryable      bool                // Whether the error is retryable
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ClassifyNetworkError analyzes a transport error and returns a typed Error.
func ClassifyNetworkError(err error, server string) *Error {
	if err == nil {
		return nil
	}

	if os.IsTimeout(err) {
		return &Error{
			Type:           ErrTypeTimeout,
			Message:        "Request timed out",
			Err:            err,
			NetworkSubtype: NetworkErrorTimeout,
			Server:         server,
			Retryable:      true,
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &Error{
			Type:           ErrTypeDNS,
			Message:        fmt.Sprintf("DNS resolution failed for %s", dnsErr.Name),
			Err:            err,
			NetworkSubtype: NetworkErrorDNS,
			Server:         server,
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch {
		case errors.Is(opErr.Err, syscall.ECONNREFUSED):
			return &Error{
				Type:           ErrTypeConnectionRefused,
				Message:        "Server refused connection",
				Err:            err,
				NetworkSubtype: NetworkErrorConnectionRefused,
				Server:         server,
				Retryable:      true,
			}
		case errors.Is(opErr.Err, syscall.EHOSTUNREACH):
			return &Error{
				Type:           ErrTypeNetwork,
				Message:        "Host unreachable",
				Err:            err,
				NetworkSubtype: NetworkErrorHostUnreachable,
				Server:         server,
				Retryable:      true,
			}
		case errors.Is(opErr.Err, syscall.ENETUNREACH):
			return &Error{
				Type:           ErrTypeNetwork,
				Message:        "Network unreachable",
				Err:            err,
				NetworkSubtype: NetworkErrorNetworkUnreachable,
				Server:         server,
				Retryable:      true,
			}
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return ClassifyNetworkError(urlErr.Err, server)
	}

	return &Error{
		Type:           ErrTypeNetwork,
		Message:        "Network error occurred",
		Err:            err,
		NetworkSubtype: NetworkErrorGeneral,
		Server:         server,
		Retryable:      true,
	}
}

// NewNetworkError creates a network-level error with automatic classification
func NewNetworkError(message, server string, err error) *Error {
	if classified := ClassifyNetworkError(err, server); classified != nil {
		classified.Message = message
		return classified
	}
	return &Error{
		Type:      ErrTypeNetwork,
		Message:   message,
		Server:    server,
		Err:       err,
		Retryable: true,
	}
}

// NewStatusError creates an error for a non-2xx response. 409 is Busy and
// retryable; 418 is a preserved transition failure and is not.
func NewStatusError(statusCode int, message string) *Error {
	switch statusCode {
	case http.StatusConflict:
		return &Error{Type: ErrTypeBusy, Message: message, StatusCode: statusCode, Retryable: true}
	case http.StatusTeapot:
		return &Error{Type: ErrTypeTransition, Message: message, StatusCode: statusCode}
	default:
		return &Error{
			Type:       ErrTypeHTTP,
			Message:    message,
			StatusCode: statusCode,
			Retryable:  statusCode >= 500 || statusCode == http.StatusTooManyRequests,
		}
	}
}

// NewParseError creates a parsing error
func NewParseError(message string, err error) *Error {
	return &Error{
		Type:    ErrTypeParse,
		Message: message,
		Err:     err,
	}
}

func typeOf(err error) (ErrorType, bool) {
	var cErr *Error
	if errors.As(err, &cErr) {
		return cErr.Type, true
	}
	return ErrTypeUnknown, false
}

// IsNetworkError checks if an error is a network error (including timeout, connection refused, DNS)
func IsNetworkError(err error) bool {
	t, ok := typeOf(err)
	return ok && (t == ErrTypeNetwork || t == ErrTypeTimeout || t == ErrTypeConnectionRefused || t == ErrTypeDNS)
}

// IsBusy reports whether the server answered that the device is in use.
func IsBusy(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrTypeBusy
}

// IsTransitionFailure reports whether a transition failed on the server.
// The device is back in standby when this is true.
func IsTransitionFailure(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrTypeTransition
}

// IsRetryable checks if an error should be retried
func IsRetryable(err error) bool {
	var cErr *Error
	if errors.As(err, &cErr) {
		return cErr.Retryable
	}
	return false
}

// notStarted reports whether err proves an orchestrate request never
// started a run, so sending it again cannot drive the device twice.
func notStarted(err error) bool {
	var cErr *Error
	if !errors.As(err, &cErr) {
		return false
	}
	switch cErr.Type {
	case ErrTypeBusy, ErrTypeConnectionRefused, ErrTypeDNS:
		return true
	case ErrTypeNetwork:
		// Unreachable fails at dial time; a reset may come after the request went out.
		return cErr.NetworkSubtype == NetworkErrorHostUnreachable ||
			cErr.NetworkSubtype == NetworkErrorNetworkUnreachable
	}
	return false
}

// GetTroubleshootingHint returns user-friendly troubleshooting advice for an error
func GetTroubleshootingHint(err error) string {
	var cErr *Error
	if !errors.As(err, &cErr) {
		return "An unexpected error occurred. Please try again."
	}

	switch cErr.Type {
	case ErrTypeTimeout:
		return strings.Join([]string{
			"The server did not respond in time.",
			"Troubleshooting:",
			"  • Operate can take a few seconds; try a longer --timeout",
			"  • Check that forcedmode-server is running",
		}, "\n")

	case ErrTypeConnectionRefused:
		return strings.Join([]string{
			"Nothing is listening at " + cErr.Server + ".",
			"Troubleshooting:",
			"  • Start the server: forcedmode-server serve",
			"  • Check --server or FORCEDMODE_SERVER",
			"  • Try 'forcedmode discover' to find servers on the network",
		}, "\n")

	case ErrTypeDNS:
		return strings.Join([]string{
			"Could not resolve the server hostname.",
			"Troubleshooting:",
			"  • Use the IP address instead of hostname",
			"  • Try 'forcedmode discover' to find servers on the network",
		}, "\n")

	case ErrTypeBusy:
		return strings.Join([]string{
			"The device is in use by another request.",
			"Troubleshooting:",
			"  • Wait for the running orchestration to finish",
			"  • Use --retries to retry automatically",
			"  • 'forcedmode watch' shows when the device is free",
		}, "\n")

	case ErrTypeTransition:
		return strings.Join([]string{
			"A hardware transition failed. The device was returned to standby.",
			"Troubleshooting:",
			"  • Check the server log for the driver error",
			"  • 'forcedmode history' shows which transition failed",
		}, "\n")

	case ErrTypeNetwork:
		hint := []string{"Network communication failed."}
		switch cErr.NetworkSubtype {
		case NetworkErrorHostUnreachable:
			hint = append(hint, "The server is not reachable on the network.",
				"Troubleshooting:",
				"  • Verify the server address is correct",
				"  • Check that you're on the same network as the server")
		case NetworkErrorNetworkUnreachable:
			hint = append(hint, "Your computer cannot reach the server's network.",
				"Troubleshooting:",
				"  • Check your network adapter settings")
		default:
			hint = append(hint, "Troubleshooting:",
				"  • Check your network connection",
				"  • Verify the server is running")
		}
		return strings.Join(hint, "\n")

	case ErrTypeHTTP:
		if cErr.StatusCode >= 500 {
			return strings.Join([]string{
				fmt.Sprintf("The server returned an error (HTTP %d).", cErr.StatusCode),
				"Troubleshooting:",
				"  • Check the server log for request " + cErr.RequestID,
				"  • The device was returned to standby before the error was reported",
			}, "\n")
		}
		return fmt.Sprintf("The server returned HTTP error %d. Check the request parameters.", cErr.StatusCode)

	case ErrTypeParse:
		return strings.Join([]string{
			"Failed to parse the server's response.",
			"Troubleshooting:",
			"  • Check that client and server versions match ('forcedmode version')",
		}, "\n")

	default:
		return "An error occurred. Please check the error message for details."
	}
}

// GetShortErrorMessage returns a concise, user-friendly error message
func GetShortErrorMessage(err error) string {
	var cErr *Error
	if !errors.As(err, &cErr) {
		return err.Error()
	}

	switch cErr.Type {
	case ErrTypeTimeout:
		return "Server not responding (timeout)"
	case ErrTypeConnectionRefused:
		return "Server refused connection - is it running?"
	case ErrTypeDNS:
		return "Cannot resolve server hostname"
	case ErrTypeBusy:
		return "Device busy - in use by another request"
	case ErrTypeTransition:
		if cErr.Run != nil && cErr.Run.FailedTransition != "" {
			return fmt.Sprintf("%s transition failed - device preserved", cErr.Run.FailedTransition)
		}
		return "Transition failed - device preserved"
	case ErrTypeNetwork:
		switch cErr.NetworkSubtype {
		case NetworkErrorHostUnreachable:
			return "Server unreachable - check network connection"
		case NetworkErrorNetworkUnreachable:
			return "Network unreachable - check connection"
		default:
			return "Network error - check connection"
		}
	case ErrTypeHTTP:
		return fmt.Sprintf("Server error (HTTP %d)", cErr.StatusCode)
	case ErrTypeParse:
		return "Failed to parse server response"
	default:
		return cErr.Message
	}
}
