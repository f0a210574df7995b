// ABOUTME: mDNS advertisement and lookup for mixer control endpoints
// ABOUTME: Publishes _resonate-mixer._tcp and finds other mixers on the LAN
package discovery

import (
	"errors"
	"fmt"
	"net"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ServiceType is the DNS-SD service type of a mixer control endpoint
const ServiceType = "_resonate-mixer._tcp"

const defaultPath = "/control"

// ErrStopped is returned by Advertise after Stop
var ErrStopped = errors.New("discovery manager stopped")

// Config holds discovery configuration
type Config struct {
	ServiceName string
	Port        int
	Path        string
}

// MixerInfo describes a discovered mixer
type MixerInfo struct {
	Name string
	Host string
	Port int
	Path string
}

// Addr returns host:port
func (i MixerInfo) Addr() string {
	return net.JoinHostPort(i.Host, fmt.Sprint(i.Port))
}

// Manager advertises this mixer and looks up others
type Manager struct {
	config Config
	log    zerolog.Logger

	mu      sync.Mutex
	server  *mdns.Server
	stopped bool
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	if config.Path == "" {
		config.Path = defaultPath
	}
	return &Manager{
		config: config,
		log:    log.Logger.With().Str("c", "discovery").Logger(),
	}
}

// TXT returns the TXT records published with the service
func (m *Manager) TXT() []string {
	return []string{"path=" + m.config.Path}
}

// Advertise publishes the control endpoint until Stop
func (m *Manager) Advertise() error {
	m.mu.Lock()
	stopped := m.stopped
	m.mu.Unlock()
	if stopped {
		return ErrStopped
	}

	ips, err := localIPv4s()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}
	zone, err := mdns.NewMDNSService(m.config.ServiceName, ServiceType, "", "", m.config.Port, ips, m.TXT())
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return ErrStopped
	}
	if m.server != nil {
		return nil
	}
	m.server, err = mdns.NewServer(&mdns.Config{Zone: zone})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	m.log.Info().Str("name", m.config.ServiceName).Int("port", m.config.Port).
		Int("addrs", len(ips)).Msg("advertising control endpoint")
	return nil
}

// Lookup runs one query and returns the distinct mixers that answered,
// sorted by name
func (m *Manager) Lookup(timeout time.Duration) []MixerInfo {
	seen := make(map[string]bool)
	var found []MixerInfo
	m.query(timeout, func(info *MixerInfo) {
		if !seen[info.Addr()] {
			seen[info.Addr()] = true
			found = append(found, *info)
		}
	})
	slices.SortFunc(found, func(a, b MixerInfo) int { return strings.Compare(a.Name, b.Name) })
	return found
}

// query runs one mDNS query and calls found for each entry on one goroutine
func (m *Manager) query(timeout time.Duration, found func(*MixerInfo)) {
	entries := make(chan *mdns.ServiceEntry, 10)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for entry := range entries {
			info := entryToMixer(entry)
			m.log.Debug().Str("name", info.Name).Str("addr", info.Addr()).Msg("mixer answered")
			found(info)
		}
	}()

	params := mdns.DefaultParams(ServiceType)
	params.Entries = entries
	params.Timeout = timeout
	params.DisableIPv6 = true
	if err := mdns.Query(params); err != nil {
		m.log.Warn().Err(err).Msg("mdns query failed")
	}
	close(entries)
	<-done
}

func entryToMixer(entry *mdns.ServiceEntry) *MixerInfo {
	info := &MixerInfo{Name: entry.Name, Port: entry.Port, Path: defaultPath}
	switch {
	case entry.AddrV4 != nil:
		info.Host = entry.AddrV4.String()
	case entry.AddrV6 != nil:
		info.Host = entry.AddrV6.String()
	}
	for _, field := range entry.InfoFields {
		if path, ok := strings.CutPrefix(field, "path="); ok && path != "" {
			info.Path = path
		}
	}
	return info
}

// Stop withdraws the advertisement. Safe to call twice.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.stopped = true
	server := m.server
	m.server = nil
	m.mu.Unlock()

	if server != nil {
		if err := server.Shutdown(); err != nil {
			m.log.Warn().Err(err).Msg("mdns shutdown failed")
		}
	}
}

// localIPv4s lists the IPv4 addresses of interfaces that are up, excluding loopback
func localIPv4s() ([]net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var ips []net.IP
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok || ipnet.IP.IsLoopback() {
				continue
			}
			if v4 := ipnet.IP.To4(); v4 != nil {
				ips = append(ips, v4)
			}
		}
	}
	return ips, nil
}
