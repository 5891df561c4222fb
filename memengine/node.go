package memengine

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	runner "github.com/ptemplier/elasticsearch-cluster-runner"
)

var (
	// ErrNodeClosed is returned when an operation reaches a closed node.
	ErrNodeClosed = errors.New("memengine: node is closed")

	// ErrNotStarted is returned when a client is used before Start.
	ErrNotStarted = errors.New("memengine: node is not started")
)

// Factory returns a runner.NodeFactory producing in-memory engine nodes.
func Factory() runner.NodeFactory {
	return func(settings runner.Settings) (runner.Node, error) {
		return newNode(settings)
	}
}

// node is one in-memory engine instance. It binds real listeners on its
// transport and HTTP ports so port probes observe genuine occupancy.
type node struct {
	name        string
	clusterName string
	settings    runner.Settings

	transportPort int
	httpPort      int
	httpEnabled   bool
	dataNode      bool
	masterNode    bool

	mu          sync.Mutex
	started     bool
	closed      bool
	transportLn net.Listener
	httpLn      net.Listener
	cl          *cluster
}

func newNode(settings runner.Settings) (*node, error) {
	if settings.Get("node.name") == "" {
		return nil, fmt.Errorf("memengine: node.name is required")
	}
	if settings.Get("cluster.name") == "" {
		return nil, fmt.Errorf("memengine: cluster.name is required")
	}

	transportPort, err := portSetting(settings, "transport.tcp.port")
	if err != nil {
		return nil, err
	}
	httpEnabled := settings.Get("http.enabled") != "false"
	httpPort := 0
	if httpEnabled {
		httpPort, err = portSetting(settings, "http.port")
		if err != nil {
			return nil, err
		}
	}

	return &node{
		name:          settings.Get("node.name"),
		clusterName:   settings.Get("cluster.name"),
		settings:      settings,
		transportPort: transportPort,
		httpPort:      httpPort,
		httpEnabled:   httpEnabled,
		dataNode:      settings.Get("node.data") != "false",
		masterNode:    settings.Get("node.master") != "false",
	}, nil
}

func portSetting(settings runner.Settings, key string) (int, error) {
	raw := settings.Get(key)
	port, err := strconv.Atoi(raw)
	if err != nil || port <= 0 {
		return 0, fmt.Errorf("memengine: invalid %s: %q", key, raw)
	}
	return port, nil
}

// Start binds the node's ports and joins its cluster.
func (n *node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return ErrNodeClosed
	}
	if n.started {
		return nil
	}

	transportLn, err := listen(n.transportPort)
	if err != nil {
		return err
	}
	var httpLn net.Listener
	if n.httpEnabled {
		httpLn, err = listen(n.httpPort)
		if err != nil {
			transportLn.Close()
			return err
		}
	}

	n.transportLn = transportLn
	n.httpLn = httpLn
	go acceptLoop(transportLn)
	if httpLn != nil {
		go acceptLoop(httpLn)
	}

	n.cl = joinCluster(n.clusterName, n)
	n.started = true
	return nil
}

func listen(port int) (net.Listener, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("memengine: bind port %d: %w", port, err)
	}
	return ln, nil
}

// acceptLoop holds the port open, accepting and dropping connections
// until the listener is closed. Probes only need the connect to succeed.
func acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conn.Close()
	}
}

// Close releases the node's ports and leaves the cluster. Safe to call
// multiple times.
func (n *node) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	transportLn, httpLn, cl := n.transportLn, n.httpLn, n.cl
	n.mu.Unlock()

	if transportLn != nil {
		transportLn.Close()
	}
	if httpLn != nil {
		httpLn.Close()
	}
	if cl != nil {
		cl.leave(n)
	}
	return nil
}

// IsClosed reports whether the node has been closed.
func (n *node) IsClosed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.closed
}

// Settings returns the settings the node was constructed with.
func (n *node) Settings() runner.Settings {
	return n.settings
}

// Client returns a client bound to this node.
func (n *node) Client() runner.Client {
	return &client{n: n}
}

// cluster returns the node's cluster or an error when the node cannot
// serve requests.
func (n *node) cluster() (*cluster, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil, ErrNodeClosed
	}
	if !n.started || n.cl == nil {
		return nil, ErrNotStarted
	}
	return n.cl, nil
}
