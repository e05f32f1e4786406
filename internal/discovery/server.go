package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Server is a forcedmode server found on the network.
type Server struct {
	// Instance is the advertised mDNS instance name (e.g., "bench-1")
	Instance string

	// Hostname is the mDNS hostname (e.g., "labhost.local.")
	Hostname string

	// IP is the address to connect to, IPv4 preferred
	IP string

	// Port is the HTTP(S) port
	Port int

	// DeviceID is the identity of the device the server arbitrates
	DeviceID string

	// Version is the server's build version
	Version string

	// TLS is true when the server serves HTTPS
	TLS bool

	// Metadata contains all mDNS TXT record data
	Metadata map[string]string

	// DiscoveredAt is when the server was discovered
	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the server
func (s *Server) String() string {
	return fmt.Sprintf("forcedmode %s (device %s) at %s", s.Instance, s.DeviceID, net.JoinHostPort(s.IP, strconv.Itoa(s.Port)))
}

// BaseURL returns the base URL for the server's HTTP API
func (s *Server) BaseURL() string {
	scheme := "http"
	if s.TLS {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(s.IP, strconv.Itoa(s.Port)))
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (s *Server) GetMetadata(key string) string {
	if s.Metadata == nil {
		return ""
	}
	return s.Metadata[key]
}
