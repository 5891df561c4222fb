package runner

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"syscall"
	"time"
)

// portProbeTimeout bounds each probe connection attempt.
const portProbeTimeout = 500 * time.Millisecond

// allocatePort finds a free TCP port for the node at the given 1-based
// index, starting at basePort+index. A negative maxPort disables probing
// and returns the candidate unchecked.
//
// The probe connects to the candidate on localhost: a successful connect
// means something is already listening there, so the candidate is skipped;
// a refused connect means the port is free. This is probe-then-allocate,
// not bind-then-verify, so another process can still grab the port between
// the probe and the node's own bind. That race is accepted for a test
// harness where nodes are started immediately after allocation.
func allocatePort(basePort, maxPort, index int, r *Runner) (int, error) {
	port := basePort + index
	if maxPort < 0 {
		return port, nil
	}

	probes := 0
	for port <= maxPort {
		probes++
		conn, err := net.DialTimeout("tcp", net.JoinHostPort("localhost", strconv.Itoa(port)), portProbeTimeout)
		if err == nil {
			conn.Close()
			port++
			continue
		}
		if isConnRefused(err) {
			r.cfg.recorder.recordPortAllocated(probes)
			return port, nil
		}
		// Anything other than a refusal is indeterminate; skip the port
		// rather than risk a collision.
		r.print(fmt.Sprintf("Port %d probe failed: %v", port, err))
		port++
	}

	return 0, fmt.Errorf("%w: port %d is unavailable", ErrPortExhausted, port)
}

// isConnRefused reports whether a dial error means nothing is listening on
// the probed port.
func isConnRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH)
}
