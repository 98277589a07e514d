package fetcher

import (
	"net"
)

// Connectivity reports whether the host currently has an active network
// connection.
type Connectivity interface {
	// Connected returns the connection state. ok is false when the state
	// cannot be queried, in which case connected carries no meaning.
	Connected() (connected bool, ok bool)
}

// ConnectivityFunc adapts a function to Connectivity.
type ConnectivityFunc func() (bool, bool)

func (f ConnectivityFunc) Connected() (bool, bool) {
	return f()
}

// InterfaceConnectivity derives the connection state from the network
// interfaces of the host: any interface that is up, is not a loopback and
// has an address counts as a connection.
type InterfaceConnectivity struct{}

func (InterfaceConnectivity) Connected() (bool, bool) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false, false
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		if len(addrs) > 0 {
			return true, true
		}
	}
	return false, true
}

// isConnected assumes a connection whenever the state is unknown.
func isConnected(c Connectivity) bool {
	if c == nil {
		return true
	}
	connected, ok := c.Connected()
	if !ok {
		return true
	}
	return connected
}
