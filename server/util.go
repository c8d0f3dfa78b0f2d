package server

import (
	"fmt"
	"net"
)

// fallbackPortRange is how many ports after the requested one are tried
const fallbackPortRange = 10

// isPortAvailable checks if a port is available for binding
func isPortAvailable(port int) bool {
	addr := fmt.Sprintf(":%d", port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return false
	}
	_ = listener.Close() // Error ignored: best-effort port check, caller will retry on actual bind
	return true
}

// findAvailablePort tries the requested port, then the next fallbackPortRange ports
func findAvailablePort(requestedPort int) (int, error) {
	for i := 0; i <= fallbackPortRange; i++ {
		if isPortAvailable(requestedPort + i) {
			return requestedPort + i, nil
		}
	}
	return 0, fmt.Errorf("no available ports found (tried %d-%d)", requestedPort, requestedPort+fallbackPortRange)
}
