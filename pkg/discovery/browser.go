package discovery

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"slices"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// BrowseTimeout bounds FindHub.
	// Default: 10 seconds.
	BrowseTimeout time.Duration

	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string

	// Logger is used for operational logging.
	// If nil, logging is disabled.
	Logger *slog.Logger
}

// DefaultBrowserConfig returns the default browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		BrowseTimeout: BrowseTimeout,
	}
}

// ServiceEntry is a resolved or removed mDNS service instance.
type ServiceEntry struct {
	Instance string
	Host     string
	Port     uint16
	Text     []string
	Addrs    []string
}

// ToHubService converts a ServiceEntry to a HubService.
func (e *ServiceEntry) ToHubService() (*HubService, error) {
	info, err := DecodeHubTXT(StringsToTXTRecords(e.Text))
	if err != nil {
		return nil, err
	}
	return &HubService{
		InstanceName: e.Instance,
		Host:         e.Host,
		Port:         e.Port,
		Addresses:    slices.Clone(e.Addrs),
		Program:      info.Program,
		Version:      info.Version,
	}, nil
}

// browseFunc delivers resolved entries and removals for service until ctx ends.
type browseFunc func(ctx context.Context, service string, entries, removed chan<- ServiceEntry) error

// Browser finds hubs with mDNS.
type Browser struct {
	config BrowserConfig
	logger *slog.Logger
	browse browseFunc
}

// NewBrowser creates a browser.
func NewBrowser(config BrowserConfig) *Browser {
	if config.BrowseTimeout <= 0 {
		config.BrowseTimeout = BrowseTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	b := &Browser{config: config, logger: logger}
	b.browse = b.zeroconfBrowse
	return b
}

// Browse searches for hubs until ctx ends. Services are aggregated by
// instance name: addresses from multiple interfaces are merged and each
// hub is sent once. The channel is closed when browsing stops.
func (b *Browser) Browse(ctx context.Context) (<-chan *HubService, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make(chan *HubService)
	entries := make(chan ServiceEntry)
	removed := make(chan ServiceEntry)
	browseErr := make(chan error, 1)

	go func() {
		browseErr <- b.browse(ctx, ServiceType, entries, removed)
	}()

	go func() {
		defer close(out)

		services := make(map[string]*HubService)
		for {
			select {
			case entry := <-entries:
				svc, err := entry.ToHubService()
				if err != nil {
					b.logger.Debug("ignoring service", "instance", entry.Instance, "error", err)
					continue
				}
				if existing, found := services[svc.InstanceName]; found {
					existing.Addresses = mergeAddresses(existing.Addresses, svc.Addresses)
					continue
				}
				services[svc.InstanceName] = svc

				// Receivers get a copy; merges only touch the stored service.
				sent := *svc
				sent.Addresses = slices.Clone(svc.Addresses)
				select {
				case out <- &sent:
				case <-ctx.Done():
					return
				}

			case entry := <-removed:
				if existing, found := services[entry.Instance]; found {
					existing.Addresses = removeAddresses(existing.Addresses, entry.Addrs)
					if len(existing.Addresses) == 0 {
						delete(services, entry.Instance)
					}
				}

			case err := <-browseErr:
				if err != nil && !errors.Is(err, context.Canceled) {
					b.logger.Warn("mDNS browse failed", "error", err)
				}
				return

			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Browse searches for hubs with a new Browser until ctx ends.
func Browse(ctx context.Context, config BrowserConfig) (<-chan *HubService, error) {
	return NewBrowser(config).Browse(ctx)
}

// FindHub browses until a hub serving program is found, or any hub if
// program is empty. It gives up after BrowseTimeout with ErrNotFound.
func (b *Browser) FindHub(ctx context.Context, program string) (*HubService, error) {
	ctx, cancel := context.WithTimeout(ctx, b.config.BrowseTimeout)
	defer cancel()

	results, err := b.Browse(ctx)
	if err != nil {
		return nil, err
	}
	for {
		select {
		case svc, ok := <-results:
			if !ok {
				if errors.Is(ctx.Err(), context.Canceled) {
					return nil, ctx.Err()
				}
				return nil, ErrNotFound
			}
			if program == "" || svc.Program == program {
				return svc, nil
			}
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, ErrNotFound
			}
			return nil, ctx.Err()
		}
	}
}

func (b *Browser) zeroconfBrowse(ctx context.Context, service string, entries, removed chan<- ServiceEntry) error {
	zEntries := make(chan *zeroconf.ServiceEntry)
	zRemoved := make(chan *zeroconf.ServiceEntry)
	go forwardEntries(ctx, zEntries, entries)
	go forwardEntries(ctx, zRemoved, removed)

	return zeroconf.Browse(ctx, service, Domain, zEntries, zRemoved, b.browserOptions()...)
}

// browserOptions returns zeroconf client options based on config.
func (b *Browser) browserOptions() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption
	if b.config.Interface != "" {
		iface, err := net.InterfaceByName(b.config.Interface)
		if err != nil {
			b.logger.Warn("unknown interface, browsing on all", "interface", b.config.Interface, "error", err)
		} else {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		}
	}
	return opts
}

func forwardEntries(ctx context.Context, in <-chan *zeroconf.ServiceEntry, out chan<- ServiceEntry) {
	for {
		select {
		case entry, ok := <-in:
			if !ok {
				return
			}
			select {
			case out <- fromZeroconf(entry):
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func fromZeroconf(entry *zeroconf.ServiceEntry) ServiceEntry {
	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}
	return ServiceEntry{
		Instance: entry.Instance,
		Host:     entry.HostName,
		Port:     uint16(entry.Port),
		Text:     entry.Text,
		Addrs:    addrs,
	}
}

// mergeAddresses adds new addresses to existing list, avoiding duplicates.
func mergeAddresses(existing, added []string) []string {
	for _, addr := range added {
		if !slices.Contains(existing, addr) {
			existing = append(existing, addr)
		}
	}
	return existing
}

// removeAddresses drops the given addresses from the list.
func removeAddresses(addresses, gone []string) []string {
	return slices.DeleteFunc(addresses, func(addr string) bool {
		return slices.Contains(gone, addr)
	})
}
