package ring

import (
	"net"
	"os"
	"path/filepath"
)

// LocalIPs returns every IP address bound to this host's network
// interfaces, used to decide which ring devices are "local" to this
// process per the cycle driver's gate-keeping step (§4.4 step 2).
func LocalIPs() (map[string]bool, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}
	ips := make(map[string]bool, len(addrs))
	for _, addr := range addrs {
		var ip net.IP
		switch v := addr.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip != nil {
			ips[ip.String()] = true
		}
	}
	return ips, nil
}

// LocalDevices filters devices down to those whose IP matches one of this
// host's local IPs.
func LocalDevices(devices []Device, localIPs map[string]bool) []Device {
	var out []Device
	for _, d := range devices {
		if localIPs[d.IP] {
			out = append(out, d)
		}
	}
	return out
}

// IsMounted reports whether device's datadir exists under base, the
// reference stand-in for a real mount-point check: production deployments
// verify the device is an actual mount (guarding against writing to the
// root filesystem when a drive has failed to mount), which this module
// approximates by requiring the directory to exist.
func IsMounted(base string, d Device) bool {
	info, err := os.Stat(filepath.Join(base, d.Device))
	return err == nil && info.IsDir()
}

// DataDir returns the on-disk root for a device's container databases:
// <base>/<device>/containers.
func DataDir(base string, d Device) string {
	return filepath.Join(base, d.Device, "containers")
}
