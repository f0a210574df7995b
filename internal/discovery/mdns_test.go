// ABOUTME: Tests for mDNS discovery
// ABOUTME: Validates manager configuration, TXT records, entry parsing and lifecycle
package discovery

import (
	"errors"
	"net"
	"testing"

	"github.com/hashicorp/mdns"
)

func TestNewManager(t *testing.T) {
	mgr := NewManager(Config{ServiceName: "Test Mixer", Port: 8928})
	defer mgr.Stop()

	if mgr.config.ServiceName != "Test Mixer" {
		t.Errorf("expected ServiceName 'Test Mixer', got '%s'", mgr.config.ServiceName)
	}
	if mgr.config.Path != "/control" {
		t.Errorf("expected default path /control, got %q", mgr.config.Path)
	}
}

func TestTXT(t *testing.T) {
	mgr := NewManager(Config{ServiceName: "m", Port: 1, Path: "/ws"})
	defer mgr.Stop()

	txt := mgr.TXT()
	if len(txt) != 1 || txt[0] != "path=/ws" {
		t.Errorf("expected [path=/ws], got %v", txt)
	}
}

func TestEntryToMixer(t *testing.T) {
	tests := []struct {
		name     string
		entry    *mdns.ServiceEntry
		expected MixerInfo
	}{
		{
			name: "ipv4 with path",
			entry: &mdns.ServiceEntry{
				Name:       "Kitchen._resonate-mixer._tcp.local.",
				AddrV4:     net.ParseIP("192.168.1.20"),
				Port:       8928,
				InfoFields: []string{"path=/ws"},
			},
			expected: MixerInfo{Name: "Kitchen._resonate-mixer._tcp.local.", Host: "192.168.1.20", Port: 8928, Path: "/ws"},
		},
		{
			name: "ipv6 default path",
			entry: &mdns.ServiceEntry{
				Name:   "Den",
				AddrV6: net.ParseIP("fe80::1"),
				Port:   9000,
			},
			expected: MixerInfo{Name: "Den", Host: "fe80::1", Port: 9000, Path: "/control"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := entryToMixer(tt.entry)
			if *got != tt.expected {
				t.Errorf("expected %+v, got %+v", tt.expected, *got)
			}
		})
	}
}

func TestStopIdempotent(t *testing.T) {
	mgr := NewManager(Config{ServiceName: "m", Port: 1})
	mgr.Stop()
	mgr.Stop()

	if err := mgr.Advertise(); !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped after Stop, got %v", err)
	}
}

func TestMixerInfoAddr(t *testing.T) {
	tests := []struct {
		info     MixerInfo
		expected string
	}{
		{MixerInfo{Host: "192.168.1.20", Port: 8928}, "192.168.1.20:8928"},
		{MixerInfo{Host: "fe80::1", Port: 9000}, "[fe80::1]:9000"},
	}
	for _, tt := range tests {
		if got := tt.info.Addr(); got != tt.expected {
			t.Errorf("expected %s, got %s", tt.expected, got)
		}
	}
}

func TestLocalIPv4s(t *testing.T) {
	ips, err := localIPv4s()
	if err != nil {
		t.Fatalf("localIPv4s failed: %v", err)
	}
	for _, ip := range ips {
		if ip.IsLoopback() {
			t.Errorf("expected no loopback addresses, got %v", ip)
		}
		if ip.To4() == nil {
			t.Errorf("expected IPv4 only, got %v", ip)
		}
	}
}
