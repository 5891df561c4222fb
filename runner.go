// Package runner manages a multi-node cluster of an embedded search engine
// for integration tests.
//
// A Runner provisions a workspace directory per node, allocates
// collision-free transport and HTTP ports, merges per-node settings, and
// starts N engine nodes sequentially. After Build, tests talk to the
// cluster through health-gated operation wrappers that block until the
// cluster converges before touching it.
//
// # Basic Usage
//
//	r, err := runner.New(memengine.Factory(),
//	    runner.WithNumOfNode(3),
//	    runner.WithClusterName("my-test-cluster"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
//
//	if err := r.Build(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	r.EnsureYellow(ctx)
//
//	r.CreateIndex(ctx, "sample", nil)
//	r.Insert(ctx, "sample", "doc", "1", `{"msg":"hello"}`)
//	res, _ := r.Search(ctx, "sample", "doc", nil, nil, 0, 10)
//
// # Customizing Nodes
//
// A build hook can override any setting per node before the runner applies
// its defaults; hook-written settings always win:
//
//	r, err := runner.New(factory, runner.WithBuildHook(
//	    func(index int, s runner.Settings) {
//	        if index == 3 {
//	            s.Set("node.data", "false")
//	        }
//	    },
//	))
//
// The engine itself is out of scope: it is injected as a NodeFactory and
// consumed as a black box through the Node and Client interfaces.
package runner

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"
)

// NodeHandle is the runner's view of one engine node: its identity, the
// ports and directories provisioned for it, and the underlying instance.
type NodeHandle struct {
	// Index is the 1-based build order of the node.
	Index int

	// Name is the node name, "Node {index}" unless overridden by the
	// build hook.
	Name string

	TransportPort int
	HTTPPort      int

	DataPath string
	LogsPath string
	WorkPath string

	// Settings is the merged configuration the node was started with.
	Settings Settings

	node Node
}

// IsClosed reports whether the underlying node has been closed.
func (h *NodeHandle) IsClosed() bool {
	return h.node.IsClosed()
}

// Close shuts the underlying node down.
func (h *NodeHandle) Close() error {
	return h.node.Close()
}

// Client returns a client bound to this node.
func (h *NodeHandle) Client() Client {
	return h.node.Client()
}

// Runner owns the ordered list of cluster nodes and their lifecycle.
type Runner struct {
	cfg *config

	// nodes is append-only after Build; indices stay stable for lookups
	// even after nodes are closed.
	nodes []*NodeHandle

	built bool

	// mu serializes master-node resolution, which reads then resolves
	// against mutable cluster state.
	mu sync.Mutex

	// done is closed by Close so Wait can block without polling.
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a Runner that will build nodes with the given factory.
func New(factory NodeFactory, opts ...Option) (*Runner, error) {
	if factory == nil {
		return nil, fmt.Errorf("%w: nil node factory", ErrConfig)
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	cfg.factory = factory
	cfg.recorder = newMetricsRecorder(cfg.meterProvider, cfg.logger)

	return &Runner{
		cfg:  cfg,
		done: make(chan struct{}),
	}, nil
}

// Build provisions the workspace and starts every node sequentially.
// Nodes are built one at a time so port and directory allocation stays
// deterministic and a failure is attributable to a single node. On error,
// nodes already started remain in the list; the caller disposes of them
// with Close.
func (r *Runner) Build(ctx context.Context) error {
	select {
	case <-r.done:
		return ErrClosed
	default:
	}
	if r.built {
		return fmt.Errorf("%w: already built", ErrConfig)
	}
	if r.cfg.numOfNode < 0 {
		return fmt.Errorf("%w: numOfNode must be >= 0, got %d", ErrConfig, r.cfg.numOfNode)
	}
	r.built = true

	if r.cfg.basePath == "" {
		dir, err := os.MkdirTemp("", "es-cluster-")
		if err != nil {
			return fmt.Errorf("%w: could not create base path: %v", ErrWorkspace, err)
		}
		r.cfg.basePath = dir
	}

	if err := r.prepareBase(); err != nil {
		return err
	}

	r.print("----------------------------------------")
	r.print("Cluster Name: " + r.cfg.clusterName)
	r.print("Base Path:    " + r.cfg.basePath)
	r.print(fmt.Sprintf("Num Of Node:  %d", r.cfg.numOfNode))
	r.print("----------------------------------------")

	start := time.Now()
	for i := 0; i < r.cfg.numOfNode; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		handle, err := r.buildNode(i + 1)
		if err != nil {
			return err
		}
		r.nodes = append(r.nodes, handle)
	}
	r.cfg.recorder.recordBuildDuration(time.Since(start))

	return nil
}

// buildNode provisions and starts the node at the given 1-based index.
func (r *Runner) buildNode(index int) (*NodeHandle, error) {
	paths, err := r.prepareNode(index)
	if err != nil {
		return nil, err
	}

	transportPort, err := allocatePort(r.cfg.baseTransportPort, r.cfg.maxTransportPort, index, r)
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}
	httpPort, err := allocatePort(r.cfg.baseHTTPPort, r.cfg.maxHTTPPort, index, r)
	if err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}

	settings := buildNodeSettings(r.cfg, index, paths, transportPort, httpPort)
	name := settings.Get("node.name")

	r.print("Node Name:      " + name)
	r.print(fmt.Sprintf("HTTP Port:      %d", httpPort))
	r.print(fmt.Sprintf("Transport Port: %d", transportPort))
	r.print("Data Directory: " + paths.data)
	r.print("Log Directory:  " + paths.logs)
	r.print("----------------------------------------")

	node, err := r.cfg.factory(settings.Clone())
	if err != nil {
		return nil, fmt.Errorf("runner: building node %d: %w", index, err)
	}
	if err := node.Start(); err != nil {
		node.Close()
		return nil, fmt.Errorf("runner: starting node %d: %w", index, err)
	}
	r.cfg.recorder.recordNodeStarted(name)

	return &NodeHandle{
		Index:         index,
		Name:          name,
		TransportPort: transportPort,
		HTTPPort:      httpPort,
		DataPath:      paths.data,
		LogsPath:      paths.logs,
		WorkPath:      paths.work,
		Settings:      settings,
		node:          node,
	}, nil
}

// Close shuts every node down. It is best-effort: a node that fails to
// close is logged and the remaining nodes are still closed, so test
// teardown never hangs on a single broken node. Safe to call multiple
// times.
func (r *Runner) Close() error {
	var firstErr error

	r.closeOnce.Do(func() {
		for _, handle := range r.nodes {
			if err := handle.Close(); err != nil {
				r.print(fmt.Sprintf("Failed to close %s: %v", handle.Name, err))
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			r.cfg.recorder.recordNodeClosed(handle.Name)
		}
		r.print("Closed all nodes.")
		close(r.done)
	})

	return firstErr
}

// IsClosed reports whether every node is closed. It is vacuously true for
// an empty node list.
func (r *Runner) IsClosed() bool {
	for _, handle := range r.nodes {
		if !handle.IsClosed() {
			return false
		}
	}
	return true
}

// Wait blocks until Close has completed.
func (r *Runner) Wait() {
	<-r.done
}

// Clean deletes the base path recursively. Unlike Close it destroys node
// data; call it only after the cluster is shut down. Calling it again once
// the path is gone is a no-op.
func (r *Runner) Clean() error {
	if r.cfg.basePath == "" {
		return nil
	}
	if err := removeAll(r.cfg.basePath); err != nil {
		r.print("Failed to delete " + r.cfg.basePath)
		return err
	}
	r.print("Deleted " + r.cfg.basePath)
	return nil
}

// Node returns the handle at the given 0-based position in build order.
func (r *Runner) Node(i int) (*NodeHandle, error) {
	if i < 0 || i >= len(r.nodes) {
		return nil, fmt.Errorf("%w: index %d", ErrNotFound, i)
	}
	return r.nodes[i], nil
}

// NodeByName returns the handle with the given node name, or nil when no
// node matches. Returning nil instead of an error lets callers poll for a
// node that is not part of the cluster yet.
func (r *Runner) NodeByName(name string) *NodeHandle {
	if name == "" {
		return nil
	}
	for _, handle := range r.nodes {
		if handle.Name == name {
			return handle
		}
	}
	return nil
}

// FirstNode returns the first node in build order that is still open.
func (r *Runner) FirstNode() (*NodeHandle, error) {
	for _, handle := range r.nodes {
		if !handle.IsClosed() {
			return handle, nil
		}
	}
	return nil, ErrAllNodesClosed
}

// NodeSize returns the number of nodes built, closed or not.
func (r *Runner) NodeSize() int {
	return len(r.nodes)
}

// Client returns a client bound to the first open node.
func (r *Runner) Client() (Client, error) {
	handle, err := r.FirstNode()
	if err != nil {
		return nil, err
	}
	return handle.Client(), nil
}

// MasterNode resolves the elected master through the cluster state and
// returns its handle. Calls are serialized because the read-then-resolve
// sequence could observe different masters mid-election.
func (r *Runner) MasterNode(ctx context.Context) (*NodeHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.masterNodeLocked(ctx)
}

func (r *Runner) masterNodeLocked(ctx context.Context) (*NodeHandle, error) {
	cli, err := r.Client()
	if err != nil {
		return nil, err
	}
	state, err := cli.State(ctx)
	if err != nil {
		return nil, err
	}
	handle := r.NodeByName(state.MasterNode)
	if handle == nil {
		return nil, fmt.Errorf("%w: master %q", ErrNotFound, state.MasterNode)
	}
	return handle, nil
}

// NonMasterNode returns the first open node in build order that is not the
// elected master, or nil when the master is the only open node. The
// first-match order is deliberate; there is no load awareness.
func (r *Runner) NonMasterNode(ctx context.Context) (*NodeHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	master, err := r.masterNodeLocked(ctx)
	if err != nil {
		return nil, err
	}
	for _, handle := range r.nodes {
		if !handle.IsClosed() && handle.Name != master.Name {
			return handle, nil
		}
	}
	return nil, nil
}

// ClusterName returns the configured cluster name.
func (r *Runner) ClusterName() string {
	return r.cfg.clusterName
}

// BasePath returns the base path. It is empty until Build resolves the
// default temporary directory.
func (r *Runner) BasePath() string {
	return r.cfg.basePath
}

// print reports progress to stdout, or to the structured logger when the
// runner was configured with WithUseLogger.
func (r *Runner) print(line string) {
	if r.cfg.useLogger {
		r.cfg.logger.Info(line)
	} else {
		fmt.Fprintln(os.Stdout, line)
	}
}
