package testutil

import (
	"context"
	"net"
	"strconv"
	"time"

	runner "github.com/ptemplier/elasticsearch-cluster-runner"
)

// WaitForStatus waits until the client reports at least the given health
// status by polling it.
func WaitForStatus(cli runner.Client, target runner.HealthStatus, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for {
		health, err := cli.Health(ctx)
		if err == nil && health.Status.AtLeast(target) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// OccupyPort binds a listener on localhost:port so the port reads as
// busy. The listener is closed when the test finishes.
func OccupyPort(t interface {
	Helper()
	Fatalf(format string, args ...any)
	Cleanup(func())
}, port int) {
	t.Helper()
	ln, err := net.Listen("tcp", net.JoinHostPort("localhost", strconv.Itoa(port)))
	if err != nil {
		t.Fatalf("occupy port %d: %v", port, err)
	}
	t.Cleanup(func() { ln.Close() })
}

// FreePort asks the kernel for an unused TCP port.
func FreePort(t interface {
	Helper()
	Fatalf(format string, args ...any)
}) int {
	t.Helper()
	ln, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}
