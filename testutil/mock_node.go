package testutil

import (
	"context"
	"sync/atomic"

	runner "github.com/ptemplier/elasticsearch-cluster-runner"
)

// MockNode provides a mock implementation of runner.Node for testing.
type MockNode struct {
	StartFunc  func() error
	CloseFunc  func() error
	ClientFunc func() runner.Client

	NodeSettings runner.Settings

	closed atomic.Bool
}

// Start calls StartFunc if set, otherwise succeeds.
func (m *MockNode) Start() error {
	if m.StartFunc != nil {
		return m.StartFunc()
	}
	return nil
}

// Close calls CloseFunc if set and marks the node closed.
func (m *MockNode) Close() error {
	m.closed.Store(true)
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// IsClosed reports whether Close has been called.
func (m *MockNode) IsClosed() bool {
	return m.closed.Load()
}

// Settings returns the settings the node was built with.
func (m *MockNode) Settings() runner.Settings {
	return m.NodeSettings
}

// Client calls ClientFunc if set, otherwise returns an empty MockClient.
func (m *MockNode) Client() runner.Client {
	if m.ClientFunc != nil {
		return m.ClientFunc()
	}
	return &MockClient{}
}

// MockClient provides a mock implementation of runner.Client for testing.
// Unset funcs return zero-value responses.
type MockClient struct {
	HealthFunc       func(ctx context.Context, indices ...string) (*runner.ClusterHealth, error)
	StateFunc        func(ctx context.Context) (*runner.ClusterState, error)
	PendingTasksFunc func(ctx context.Context) ([]string, error)
	CreateIndexFunc  func(ctx context.Context, index string, settings runner.Settings) (*runner.AcknowledgedResponse, error)
	IndexExistsFunc  func(ctx context.Context, index string) (bool, error)
	PutMappingFunc   func(ctx context.Context, index, doctype, source string) (*runner.AcknowledgedResponse, error)
	FlushFunc        func(ctx context.Context, indices ...string) (*runner.BroadcastResponse, error)
	RefreshFunc      func(ctx context.Context, indices ...string) (*runner.BroadcastResponse, error)
	OptimizeFunc     func(ctx context.Context, force bool, indices ...string) (*runner.BroadcastResponse, error)
	InsertFunc       func(ctx context.Context, req runner.IndexRequest) (*runner.IndexResponse, error)
	DeleteFunc       func(ctx context.Context, req runner.DeleteRequest) (*runner.DeleteResponse, error)
	SearchFunc       func(ctx context.Context, req runner.SearchRequest) (*runner.SearchResponse, error)
}

// Health calls HealthFunc if set, otherwise reports a green cluster.
func (m *MockClient) Health(ctx context.Context, indices ...string) (*runner.ClusterHealth, error) {
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx, indices...)
	}
	return &runner.ClusterHealth{Status: runner.StatusGreen}, nil
}

// State calls StateFunc if set, otherwise returns an empty state.
func (m *MockClient) State(ctx context.Context) (*runner.ClusterState, error) {
	if m.StateFunc != nil {
		return m.StateFunc(ctx)
	}
	return &runner.ClusterState{}, nil
}

// PendingTasks calls PendingTasksFunc if set, otherwise returns none.
func (m *MockClient) PendingTasks(ctx context.Context) ([]string, error) {
	if m.PendingTasksFunc != nil {
		return m.PendingTasksFunc(ctx)
	}
	return nil, nil
}

// CreateIndex calls CreateIndexFunc if set, otherwise acknowledges.
func (m *MockClient) CreateIndex(ctx context.Context, index string, settings runner.Settings) (*runner.AcknowledgedResponse, error) {
	if m.CreateIndexFunc != nil {
		return m.CreateIndexFunc(ctx, index, settings)
	}
	return &runner.AcknowledgedResponse{Acknowledged: true}, nil
}

// IndexExists calls IndexExistsFunc if set, otherwise reports false.
func (m *MockClient) IndexExists(ctx context.Context, index string) (bool, error) {
	if m.IndexExistsFunc != nil {
		return m.IndexExistsFunc(ctx, index)
	}
	return false, nil
}

// PutMapping calls PutMappingFunc if set, otherwise acknowledges.
func (m *MockClient) PutMapping(ctx context.Context, index, doctype, source string) (*runner.AcknowledgedResponse, error) {
	if m.PutMappingFunc != nil {
		return m.PutMappingFunc(ctx, index, doctype, source)
	}
	return &runner.AcknowledgedResponse{Acknowledged: true}, nil
}

// Flush calls FlushFunc if set, otherwise succeeds with no shards.
func (m *MockClient) Flush(ctx context.Context, indices ...string) (*runner.BroadcastResponse, error) {
	if m.FlushFunc != nil {
		return m.FlushFunc(ctx, indices...)
	}
	return &runner.BroadcastResponse{}, nil
}

// Refresh calls RefreshFunc if set, otherwise succeeds with no shards.
func (m *MockClient) Refresh(ctx context.Context, indices ...string) (*runner.BroadcastResponse, error) {
	if m.RefreshFunc != nil {
		return m.RefreshFunc(ctx, indices...)
	}
	return &runner.BroadcastResponse{}, nil
}

// Optimize calls OptimizeFunc if set, otherwise succeeds with no shards.
func (m *MockClient) Optimize(ctx context.Context, force bool, indices ...string) (*runner.BroadcastResponse, error) {
	if m.OptimizeFunc != nil {
		return m.OptimizeFunc(ctx, force, indices...)
	}
	return &runner.BroadcastResponse{}, nil
}

// Insert calls InsertFunc if set, otherwise reports a created document.
func (m *MockClient) Insert(ctx context.Context, req runner.IndexRequest) (*runner.IndexResponse, error) {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, req)
	}
	return &runner.IndexResponse{Index: req.Index, Type: req.Type, ID: req.ID, Version: 1, Created: true}, nil
}

// Delete calls DeleteFunc if set, otherwise reports a found document.
func (m *MockClient) Delete(ctx context.Context, req runner.DeleteRequest) (*runner.DeleteResponse, error) {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, req)
	}
	return &runner.DeleteResponse{Index: req.Index, Type: req.Type, ID: req.ID, Version: 2, Found: true}, nil
}

// Search calls SearchFunc if set, otherwise returns no hits.
func (m *MockClient) Search(ctx context.Context, req runner.SearchRequest) (*runner.SearchResponse, error) {
	if m.SearchFunc != nil {
		return m.SearchFunc(ctx, req)
	}
	return &runner.SearchResponse{}, nil
}
