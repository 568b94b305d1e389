package discovery

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"time"
)

// Service type constants for mDNS.
const (
	// ServiceType is the service type hubs advertise.
	ServiceType = "_hub._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is used when a hub advertises port 0.
	DefaultPort = 9877
)

// TXT record keys.
const (
	TXTKeyProgram = "program"
	TXTKeyVersion = "version" // optional
)

// BrowseTimeout is the default time FindHub waits for a hub.
const BrowseTimeout = 10 * time.Second

// Errors.
var (
	ErrNotFound         = errors.New("hub not found")
	ErrMissingRequired  = errors.New("missing required TXT record")
	ErrInvalidTXTRecord = errors.New("invalid TXT record")
)

// HubService is a hub found by browsing.
type HubService struct {
	InstanceName string
	Host         string
	Port         uint16
	Addresses    []string
	Program      string
	Version      string
}

// Address returns a dialable host:port, preferring the first resolved
// address over the host name.
func (s *HubService) Address() string {
	host := strings.TrimSuffix(s.Host, ".")
	if len(s.Addresses) > 0 {
		host = s.Addresses[0]
	}
	port := s.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(host, strconv.Itoa(int(port)))
}

// String returns "instance (program) at host:port".
func (s *HubService) String() string {
	return s.InstanceName + " (" + s.Program + ") at " + s.Address()
}
