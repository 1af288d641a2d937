package common

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"os"
	"runtime"
)

// MachineID derives the stable per-host identifier the admin callback loop
// registers clients under (spec.md §6): "MACHINE-" + the first 12 hex
// characters of SHA-256(hostname|primary_mac|platform). The inputs are all
// properties of the host itself, so the value survives process restarts.
func MachineID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown-host"
	}

	digest := sha256.Sum256([]byte(hostname + "|" + primaryMAC() + "|" + runtime.GOOS))
	return "MACHINE-" + hex.EncodeToString(digest[:])[:12]
}

// primaryMAC returns the first non-loopback interface's hardware address,
// or "" if none is found (containers without a real NIC, for instance).
func primaryMAC() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if len(iface.HardwareAddr) == 0 {
			continue
		}
		return iface.HardwareAddr.String()
	}
	return ""
}

// LocalIP returns the outbound-facing local address, best-effort, for
// inclusion in heartbeat payloads.
func LocalIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return ""
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return ""
	}
	return addr.IP.String()
}
