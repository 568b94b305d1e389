// Package discovery finds hubs on the local network with mDNS/DNS-SD.
//
// Hubs advertise the service type _hub._tcp. The instance name is free-form
// (usually the host or site name). TXT records carry:
//
//   - program: the program name the hub serves (required)
//   - version: the hub software version (optional)
//
// A hub seen on several interfaces is reported once, with the addresses of
// all interfaces merged.
package discovery
