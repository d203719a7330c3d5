package relay

import (
	"sync"

	"golang.org/x/exp/slices"
)

// Devices is the roster of device addresses registered through /record_ip.
type Devices struct{ *sync.Map }

func (d *Devices) Add(ip string) {
	d.Store(ip, struct{}{})
}

func (d *Devices) Remove(ip string) {
	d.Delete(ip)
}

// List returns the registered addresses in sorted order.
func (d *Devices) List() []string {
	ips := []string{}
	d.Range(func(key, _ any) bool {
		ips = append(ips, key.(string))
		return true
	})
	slices.Sort(ips)
	return ips
}
