package rpc

import "net"

// InterfaceChecker reports connectivity by inspecting network interfaces.
// FUNCTIONAL DISCOVERY: Interface enumeration is the only check cheap enough
// to run before every call; failure of the enumeration itself must read as
// "assume online" so a broken probe never blocks real requests
type InterfaceChecker struct{}

// Online reports whether any non-loopback interface is up
func (InterfaceChecker) Online() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		// Probe failure is not evidence of being offline
		return true
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagLoopback == 0 {
			return true
		}
	}
	return false
}
