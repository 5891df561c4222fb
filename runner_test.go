package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"
)

// fakeNode is an in-memory Node used by the unit tests; the full engine
// implementation lives in the memengine package and is covered by the
// integration tests.
type fakeNode struct {
	settings Settings
	client   Client

	startErr error
	closeErr error

	mu     sync.Mutex
	closed bool
}

func (n *fakeNode) Start() error {
	return n.startErr
}

func (n *fakeNode) Close() error {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()
	return n.closeErr
}

func (n *fakeNode) IsClosed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.closed
}

func (n *fakeNode) Settings() Settings {
	return n.settings
}

func (n *fakeNode) Client() Client {
	return n.client
}

// fakeClient implements Client with canned responses.
type fakeClient struct {
	health       func(ctx context.Context, indices ...string) (*ClusterHealth, error)
	state        func(ctx context.Context) (*ClusterState, error)
	pendingTasks func(ctx context.Context) ([]string, error)
	createIndex  func(ctx context.Context, index string, settings Settings) (*AcknowledgedResponse, error)
	indexExists  func(ctx context.Context, index string) (bool, error)
	putMapping   func(ctx context.Context, index, doctype, source string) (*AcknowledgedResponse, error)
	flush        func(ctx context.Context, indices ...string) (*BroadcastResponse, error)
	refresh      func(ctx context.Context, indices ...string) (*BroadcastResponse, error)
	optimize     func(ctx context.Context, force bool, indices ...string) (*BroadcastResponse, error)
	insert       func(ctx context.Context, req IndexRequest) (*IndexResponse, error)
	deleteDoc    func(ctx context.Context, req DeleteRequest) (*DeleteResponse, error)
	search       func(ctx context.Context, req SearchRequest) (*SearchResponse, error)
}

func (c *fakeClient) Health(ctx context.Context, indices ...string) (*ClusterHealth, error) {
	if c.health != nil {
		return c.health(ctx, indices...)
	}
	return &ClusterHealth{Status: StatusGreen}, nil
}

func (c *fakeClient) State(ctx context.Context) (*ClusterState, error) {
	if c.state != nil {
		return c.state(ctx)
	}
	return &ClusterState{}, nil
}

func (c *fakeClient) PendingTasks(ctx context.Context) ([]string, error) {
	if c.pendingTasks != nil {
		return c.pendingTasks(ctx)
	}
	return nil, nil
}

func (c *fakeClient) CreateIndex(ctx context.Context, index string, settings Settings) (*AcknowledgedResponse, error) {
	if c.createIndex != nil {
		return c.createIndex(ctx, index, settings)
	}
	return &AcknowledgedResponse{Acknowledged: true}, nil
}

func (c *fakeClient) IndexExists(ctx context.Context, index string) (bool, error) {
	if c.indexExists != nil {
		return c.indexExists(ctx, index)
	}
	return false, nil
}

func (c *fakeClient) PutMapping(ctx context.Context, index, doctype, source string) (*AcknowledgedResponse, error) {
	if c.putMapping != nil {
		return c.putMapping(ctx, index, doctype, source)
	}
	return &AcknowledgedResponse{Acknowledged: true}, nil
}

func (c *fakeClient) Flush(ctx context.Context, indices ...string) (*BroadcastResponse, error) {
	if c.flush != nil {
		return c.flush(ctx, indices...)
	}
	return &BroadcastResponse{}, nil
}

func (c *fakeClient) Refresh(ctx context.Context, indices ...string) (*BroadcastResponse, error) {
	if c.refresh != nil {
		return c.refresh(ctx, indices...)
	}
	return &BroadcastResponse{}, nil
}

func (c *fakeClient) Optimize(ctx context.Context, force bool, indices ...string) (*BroadcastResponse, error) {
	if c.optimize != nil {
		return c.optimize(ctx, force, indices...)
	}
	return &BroadcastResponse{}, nil
}

func (c *fakeClient) Insert(ctx context.Context, req IndexRequest) (*IndexResponse, error) {
	if c.insert != nil {
		return c.insert(ctx, req)
	}
	return &IndexResponse{Index: req.Index, Type: req.Type, ID: req.ID, Version: 1, Created: true}, nil
}

func (c *fakeClient) Delete(ctx context.Context, req DeleteRequest) (*DeleteResponse, error) {
	if c.deleteDoc != nil {
		return c.deleteDoc(ctx, req)
	}
	return &DeleteResponse{Index: req.Index, Type: req.Type, ID: req.ID, Version: 2, Found: true}, nil
}

func (c *fakeClient) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	if c.search != nil {
		return c.search(ctx, req)
	}
	return &SearchResponse{}, nil
}

// fakeFactory builds fakeNodes that all share the given client.
func fakeFactory(client Client) NodeFactory {
	return func(settings Settings) (Node, error) {
		return &fakeNode{settings: settings, client: client}, nil
	}
}

// newBuiltRunner builds a runner with n fake nodes in a temp workspace.
// Probing is disabled so the tests never touch real ports.
func newBuiltRunner(t *testing.T, n int, client Client, opts ...Option) *Runner {
	t.Helper()
	opts = append([]Option{
		WithBasePath(t.TempDir()),
		WithNumOfNode(n),
		WithMaxTransportPort(-1),
		WithMaxHTTPPort(-1),
	}, opts...)
	r, err := New(fakeFactory(client), opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := r.Build(context.Background()); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestNewNilFactory(t *testing.T) {
	_, err := New(nil)
	if !errors.Is(err, ErrConfig) {
		t.Errorf("New(nil) error = %v, want ErrConfig", err)
	}
}

func TestBuildTwice(t *testing.T) {
	r := newBuiltRunner(t, 1, &fakeClient{})
	err := r.Build(context.Background())
	if !errors.Is(err, ErrConfig) {
		t.Errorf("second Build() error = %v, want ErrConfig", err)
	}
}

func TestBuildAfterClose(t *testing.T) {
	r, err := New(fakeFactory(&fakeClient{}), WithBasePath(t.TempDir()), WithNumOfNode(0))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	r.Close()

	if err := r.Build(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Build() after Close error = %v, want ErrClosed", err)
	}
}

func TestBuildNegativeNumOfNode(t *testing.T) {
	r, err := New(fakeFactory(&fakeClient{}), WithNumOfNode(-1), WithBasePath(t.TempDir()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := r.Build(context.Background()); !errors.Is(err, ErrConfig) {
		t.Errorf("Build() error = %v, want ErrConfig", err)
	}
}

func TestBuildZeroNodes(t *testing.T) {
	r := newBuiltRunner(t, 0, &fakeClient{})
	if r.NodeSize() != 0 {
		t.Errorf("NodeSize() = %d, want 0", r.NodeSize())
	}
	if !r.IsClosed() {
		t.Error("IsClosed() should be vacuously true with no nodes")
	}
}

func TestBuildCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, err := New(fakeFactory(&fakeClient{}),
		WithBasePath(t.TempDir()),
		WithNumOfNode(2),
		WithMaxTransportPort(-1),
		WithMaxHTTPPort(-1),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := r.Build(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Build() error = %v, want context.Canceled", err)
	}
}

func TestBuildNodeStartFailure(t *testing.T) {
	startErr := errors.New("boom")
	factory := func(settings Settings) (Node, error) {
		return &fakeNode{settings: settings, startErr: startErr}, nil
	}
	r, err := New(factory,
		WithBasePath(t.TempDir()),
		WithNumOfNode(1),
		WithMaxTransportPort(-1),
		WithMaxHTTPPort(-1),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := r.Build(context.Background()); !errors.Is(err, startErr) {
		t.Errorf("Build() error = %v, want wrapped start error", err)
	}
}

func TestNodeHandles(t *testing.T) {
	r := newBuiltRunner(t, 3, &fakeClient{})

	if got := r.NodeSize(); got != 3 {
		t.Fatalf("NodeSize() = %d, want 3", got)
	}

	for i := 0; i < 3; i++ {
		handle, err := r.Node(i)
		if err != nil {
			t.Fatalf("Node(%d) error = %v", i, err)
		}
		wantName := fmt.Sprintf("Node %d", i+1)
		if handle.Name != wantName {
			t.Errorf("Node(%d).Name = %q, want %q", i, handle.Name, wantName)
		}
		if handle.Index != i+1 {
			t.Errorf("Node(%d).Index = %d, want %d", i, handle.Index, i+1)
		}
		if handle.TransportPort != 9300+i+1 {
			t.Errorf("Node(%d).TransportPort = %d, want %d", i, handle.TransportPort, 9300+i+1)
		}
		if handle.HTTPPort != 9200+i+1 {
			t.Errorf("Node(%d).HTTPPort = %d, want %d", i, handle.HTTPPort, 9200+i+1)
		}
	}

	if _, err := r.Node(-1); !errors.Is(err, ErrNotFound) {
		t.Errorf("Node(-1) error = %v, want ErrNotFound", err)
	}
	if _, err := r.Node(3); !errors.Is(err, ErrNotFound) {
		t.Errorf("Node(3) error = %v, want ErrNotFound", err)
	}
}

func TestNodeByName(t *testing.T) {
	r := newBuiltRunner(t, 2, &fakeClient{})

	if handle := r.NodeByName("Node 2"); handle == nil || handle.Index != 2 {
		t.Errorf("NodeByName(%q) = %v, want node with index 2", "Node 2", handle)
	}
	if handle := r.NodeByName("Node 9"); handle != nil {
		t.Errorf("NodeByName of unknown node = %v, want nil", handle)
	}
	if handle := r.NodeByName(""); handle != nil {
		t.Errorf("NodeByName of empty name = %v, want nil", handle)
	}
}

func TestFirstNodeSkipsClosed(t *testing.T) {
	r := newBuiltRunner(t, 3, &fakeClient{})

	first, err := r.FirstNode()
	if err != nil {
		t.Fatalf("FirstNode() error = %v", err)
	}
	if first.Index != 1 {
		t.Errorf("FirstNode().Index = %d, want 1", first.Index)
	}

	first.Close()

	first, err = r.FirstNode()
	if err != nil {
		t.Fatalf("FirstNode() after close error = %v", err)
	}
	if first.Index != 2 {
		t.Errorf("FirstNode().Index = %d, want 2", first.Index)
	}
}

func TestFirstNodeAllClosed(t *testing.T) {
	r := newBuiltRunner(t, 2, &fakeClient{})
	r.Close()

	if _, err := r.FirstNode(); !errors.Is(err, ErrAllNodesClosed) {
		t.Errorf("FirstNode() error = %v, want ErrAllNodesClosed", err)
	}
	if _, err := r.Client(); !errors.Is(err, ErrAllNodesClosed) {
		t.Errorf("Client() error = %v, want ErrAllNodesClosed", err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	r := newBuiltRunner(t, 2, &fakeClient{})

	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !r.IsClosed() {
		t.Error("IsClosed() = false after Close")
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestWaitBlocksUntilClose(t *testing.T) {
	r := newBuiltRunner(t, 1, &fakeClient{})

	released := make(chan struct{})
	go func() {
		r.Wait()
		close(released)
	}()

	select {
	case <-released:
		t.Fatal("Wait() returned before Close")
	case <-time.After(50 * time.Millisecond):
	}

	r.Close()

	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("Wait() did not return after Close")
	}
}

func TestClean(t *testing.T) {
	r := newBuiltRunner(t, 1, &fakeClient{})
	base := r.BasePath()
	r.Close()

	if err := r.Clean(); err != nil {
		t.Fatalf("Clean() error = %v", err)
	}
	if _, err := os.Stat(base); err == nil {
		t.Errorf("base path %s still exists after Clean", base)
	}
	// already gone, still fine
	if err := r.Clean(); err != nil {
		t.Errorf("second Clean() error = %v", err)
	}
}

func TestMasterNode(t *testing.T) {
	client := &fakeClient{
		state: func(ctx context.Context) (*ClusterState, error) {
			return &ClusterState{MasterNode: "Node 1"}, nil
		},
	}
	r := newBuiltRunner(t, 3, client)

	master, err := r.MasterNode(context.Background())
	if err != nil {
		t.Fatalf("MasterNode() error = %v", err)
	}
	if master.Name != "Node 1" {
		t.Errorf("MasterNode().Name = %q, want %q", master.Name, "Node 1")
	}

	nonMaster, err := r.NonMasterNode(context.Background())
	if err != nil {
		t.Fatalf("NonMasterNode() error = %v", err)
	}
	if nonMaster == nil || nonMaster.Name != "Node 2" {
		t.Errorf("NonMasterNode() = %v, want Node 2", nonMaster)
	}
}

func TestMasterNodeUnknown(t *testing.T) {
	client := &fakeClient{
		state: func(ctx context.Context) (*ClusterState, error) {
			return &ClusterState{MasterNode: "elsewhere"}, nil
		},
	}
	r := newBuiltRunner(t, 1, client)

	if _, err := r.MasterNode(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Errorf("MasterNode() error = %v, want ErrNotFound", err)
	}
}

func TestNonMasterNodeSingleNode(t *testing.T) {
	client := &fakeClient{
		state: func(ctx context.Context) (*ClusterState, error) {
			return &ClusterState{MasterNode: "Node 1"}, nil
		},
	}
	r := newBuiltRunner(t, 1, client)

	nonMaster, err := r.NonMasterNode(context.Background())
	if err != nil {
		t.Fatalf("NonMasterNode() error = %v", err)
	}
	if nonMaster != nil {
		t.Errorf("NonMasterNode() = %v, want nil when the master is the only node", nonMaster)
	}
}

func TestClusterNameAndBasePath(t *testing.T) {
	base := t.TempDir()
	r, err := New(fakeFactory(&fakeClient{}),
		WithBasePath(base),
		WithClusterName("custom"),
		WithNumOfNode(0),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if r.ClusterName() != "custom" {
		t.Errorf("ClusterName() = %q, want %q", r.ClusterName(), "custom")
	}
	if err := r.Build(context.Background()); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if r.BasePath() != base {
		t.Errorf("BasePath() = %q, want %q", r.BasePath(), base)
	}
}

func TestBuildTempBasePath(t *testing.T) {
	r, err := New(fakeFactory(&fakeClient{}), WithNumOfNode(0))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := r.Build(context.Background()); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	t.Cleanup(func() {
		r.Close()
		r.Clean()
	})
	if r.BasePath() == "" {
		t.Error("BasePath() is empty, want a generated temp dir")
	}
}
