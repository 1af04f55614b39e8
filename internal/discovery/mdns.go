// ABOUTME: mDNS service discovery for streamplayer event feeds
// ABOUTME: Advertises a running player and browses for others on the local network
package discovery

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
	"go.uber.org/zap"
)

// ServiceType is the mDNS service a player's event feed is advertised under
const ServiceType = "_streamplayer._tcp"

// DefaultBrowseTimeout bounds a single mDNS query
const DefaultBrowseTimeout = 3 * time.Second

// Config holds discovery configuration
type Config struct {
	ServiceName string
	Port        int

	// Path is published in the TXT record so browsers can build the websocket URL
	Path string

	Logger *zap.Logger
}

// Manager handles mDNS operations
type Manager struct {
	config Config
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// PlayerInfo describes a discovered player
type PlayerInfo struct {
	Name string
	Host string
	Port int
	Path string
}

// Addr returns host:port
func (p PlayerInfo) Addr() string {
	return net.JoinHostPort(p.Host, fmt.Sprint(p.Port))
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	if config.Logger == nil {
		config.Logger = zap.L()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config: config,
		log:    config.Logger.Named("discovery"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Advertise publishes this player via mDNS until Stop is called
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		txtRecords(m.config.Path),
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	m.log.Info("Advertising mDNS service",
		zap.String("name", m.config.ServiceName),
		zap.Int("port", m.config.Port),
		zap.String("type", ServiceType))

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// Browse runs one mDNS query and returns the players that answered
func (m *Manager) Browse(timeout time.Duration) ([]PlayerInfo, error) {
	if timeout <= 0 {
		timeout = DefaultBrowseTimeout
	}

	entries := make(chan *mdns.ServiceEntry, 16)
	done := make(chan []PlayerInfo)

	go func() {
		var found []PlayerInfo
		seen := make(map[string]bool)
		for entry := range entries {
			info, ok := toPlayerInfo(entry)
			if !ok || seen[info.Addr()] {
				continue
			}
			seen[info.Addr()] = true
			m.log.Debug("Discovered player", zap.String("name", info.Name), zap.String("addr", info.Addr()))
			found = append(found, info)
		}
		done <- found
	}()

	params := mdns.DefaultParams(ServiceType)
	params.Domain = "local"
	params.Timeout = timeout
	params.Entries = entries
	params.DisableIPv6 = true

	err := mdns.Query(params)
	close(entries)
	found := <-done
	if err != nil {
		return found, fmt.Errorf("mdns query failed: %w", err)
	}
	return found, nil
}

// Stop withdraws any advertisement
func (m *Manager) Stop() {
	m.cancel()
}

func txtRecords(path string) []string {
	if path == "" {
		return nil
	}
	return []string{"path=" + path}
}

func toPlayerInfo(entry *mdns.ServiceEntry) (PlayerInfo, bool) {
	if entry == nil || entry.AddrV4 == nil || entry.Port == 0 {
		return PlayerInfo{}, false
	}
	info := PlayerInfo{
		Name: instanceName(entry.Name),
		Host: entry.AddrV4.String(),
		Port: entry.Port,
	}
	for _, field := range entry.InfoFields {
		if v, ok := strings.CutPrefix(field, "path="); ok {
			info.Path = v
		}
	}
	return info, true
}

// instanceName strips the service and domain labels from a full entry name
func instanceName(full string) string {
	if i := strings.Index(full, "."+ServiceType); i > 0 {
		return strings.ReplaceAll(full[:i], `\ `, " ")
	}
	return full
}

// getLocalIPs returns non-loopback IPv4 addresses of interfaces that are up
func getLocalIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}

	return ips, nil
}
