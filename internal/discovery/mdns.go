// ABOUTME: mDNS advertisement of the control endpoint
// ABOUTME: Lets controllers on the local network find a running player
package discovery

import (
	"fmt"
	"log"
	"net"

	"github.com/hashicorp/mdns"
)

const serviceType = "_kanade-ctl._tcp"

// Announcer publishes the control endpoint over mDNS until stopped.
type Announcer struct {
	instance string
	port     int
	server   *mdns.Server
}

// NewAnnouncer prepares an announcement for the named player instance.
func NewAnnouncer(instance string, port int) *Announcer {
	return &Announcer{instance: instance, port: port}
}

// Start begins advertising. Interfaces without a usable IPv4 address are
// skipped; having none is an error since nobody could reach us anyway.
func (a *Announcer) Start() error {
	ips, err := localIPs()
	if err != nil {
		return fmt.Errorf("enumerate interfaces: %w", err)
	}
	if len(ips) == 0 {
		return fmt.Errorf("no routable IPv4 addresses to advertise")
	}

	service, err := mdns.NewMDNSService(
		a.instance,
		serviceType,
		"",
		"",
		a.port,
		ips,
		[]string{"path=/control"},
	)
	if err != nil {
		return fmt.Errorf("create mdns service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("start mdns server: %w", err)
	}
	a.server = server

	log.Printf("Advertising %s as %s on port %d", serviceType, a.instance, a.port)
	return nil
}

// Stop withdraws the advertisement.
func (a *Announcer) Stop() {
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

func localIPs() ([]net.IP, error) {
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
