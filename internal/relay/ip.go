package relay

import (
	"fmt"
	"net"
)

// LocalIP returns the address of the interface used for outbound traffic,
// falling back to the first non loopback IPv4 interface address.
func LocalIP() (net.IP, error) {
	// no packets are sent for udp dials
	if c, err := net.Dial("udp", "10.255.255.255:1"); err == nil {
		defer c.Close()
		if addr, ok := c.LocalAddr().(*net.UDPAddr); ok && !addr.IP.IsUnspecified() {
			return addr.IP, nil
		}
	}

	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ipnet.IP.To4() != nil {
				return ipnet.IP, nil
			}
		}
	}
	return nil, fmt.Errorf("unable to resolve local IP")
}
