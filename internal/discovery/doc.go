// Package discovery advertises and finds forcedmode servers with mDNS.
//
// A server started with mDNS enabled registers itself as a
// "_forcedmode._tcp" service in the "local." domain. The TXT record carries
// the device identity, the server version and whether TLS is on:
//
//	device=bench-1 version=1.2.0 tls=false
//
// The CLI's discover command browses for that service type and lists what
// answers within the timeout.
//
// # Usage Example
//
//	adv, err := discovery.Advertise("bench-1", 8080, deviceID, version.Version, false)
//	if err != nil {
//	    return err
//	}
//	defer adv.Shutdown()
//
//	servers, err := discovery.NewScanner().Scan(ctx)
//	for _, s := range servers {
//	    fmt.Println(s, s.BaseURL())
//	}
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Servers must be on the same local network segment
// - Firewall must allow mDNS (UDP port 5353)
package discovery
