package runner

import (
	"context"
	"fmt"
	"strings"
)

// Node is a single embedded engine instance managed by the runner.
// Implementations wrap whatever engine the cluster is made of; the runner
// only drives the lifecycle and observes state through the node's Client.
type Node interface {
	// Start boots the node with the settings it was constructed with.
	Start() error

	// Close shuts the node down. It must be safe to call multiple times.
	Close() error

	// IsClosed reports whether the node has been closed.
	IsClosed() bool

	// Settings returns the settings the node was constructed with.
	Settings() Settings

	// Client returns a client bound to this node.
	Client() Client
}

// NodeFactory constructs an unstarted Node from its resolved settings.
// The runner calls it once per node during Build.
type NodeFactory func(settings Settings) (Node, error)

// HealthAPI exposes cluster-level state and health queries.
type HealthAPI interface {
	// Health returns a point-in-time health snapshot scoped to the given
	// indices (none = whole cluster).
	Health(ctx context.Context, indices ...string) (*ClusterHealth, error)

	// State returns the current cluster state.
	State(ctx context.Context) (*ClusterState, error)

	// PendingTasks returns descriptions of cluster-state updates that have
	// been accepted but not yet applied.
	PendingTasks(ctx context.Context) ([]string, error)
}

// IndicesAPI exposes index-level administration.
type IndicesAPI interface {
	CreateIndex(ctx context.Context, index string, settings Settings) (*AcknowledgedResponse, error)
	IndexExists(ctx context.Context, index string) (bool, error)
	PutMapping(ctx context.Context, index, doctype, source string) (*AcknowledgedResponse, error)
	Flush(ctx context.Context, indices ...string) (*BroadcastResponse, error)
	Refresh(ctx context.Context, indices ...string) (*BroadcastResponse, error)
	Optimize(ctx context.Context, force bool, indices ...string) (*BroadcastResponse, error)
}

// DocumentsAPI exposes single-document writes.
type DocumentsAPI interface {
	Insert(ctx context.Context, req IndexRequest) (*IndexResponse, error)
	Delete(ctx context.Context, req DeleteRequest) (*DeleteResponse, error)
}

// SearchAPI exposes query execution.
type SearchAPI interface {
	Search(ctx context.Context, req SearchRequest) (*SearchResponse, error)
}

// Client is the full capability surface the runner needs from an engine
// node. Engine adapters implement it as a single client type.
type Client interface {
	HealthAPI
	IndicesAPI
	DocumentsAPI
	SearchAPI
}

// HealthStatus is a cluster health level as reported by the engine.
type HealthStatus string

const (
	StatusRed    HealthStatus = "red"
	StatusYellow HealthStatus = "yellow"
	StatusGreen  HealthStatus = "green"
)

func (s HealthStatus) rank() int {
	switch s {
	case StatusGreen:
		return 2
	case StatusYellow:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether s is the same as or healthier than target.
func (s HealthStatus) AtLeast(target HealthStatus) bool {
	return s.rank() >= target.rank()
}

// ClusterHealth is a point-in-time health snapshot.
type ClusterHealth struct {
	Status           HealthStatus
	NumberOfNodes    int
	ActiveShards     int
	RelocatingShards int
	UnassignedShards int

	// PendingTasks is the number of cluster-state updates not yet applied.
	PendingTasks int
}

// ClusterState describes the cluster as a whole, for master resolution and
// timeout diagnostics.
type ClusterState struct {
	ClusterName string
	MasterNode  string
	Nodes       []string
	Indices     []string
}

// String renders the state in a form suitable for failure diagnostics.
func (s *ClusterState) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "cluster_name: %s\n", s.ClusterName)
	fmt.Fprintf(&b, "master_node: %s\n", s.MasterNode)
	fmt.Fprintf(&b, "nodes: %s\n", strings.Join(s.Nodes, ", "))
	fmt.Fprintf(&b, "indices: %s", strings.Join(s.Indices, ", "))
	return b.String()
}

// AcknowledgedResponse reports whether a cluster-state mutation was
// acknowledged by the engine.
type AcknowledgedResponse struct {
	Acknowledged bool
}

// IndexRequest describes a single-document write.
type IndexRequest struct {
	Index  string
	Type   string
	ID     string
	Source string

	// Refresh forces the write to be visible to searches before returning.
	Refresh bool
}

// IndexResponse is the engine's answer to an Insert.
type IndexResponse struct {
	Index   string
	Type    string
	ID      string
	Version int64

	// Created is false when the write replaced an existing document.
	Created bool
}

// DeleteRequest describes a single-document delete.
type DeleteRequest struct {
	Index   string
	Type    string
	ID      string
	Refresh bool
}

// DeleteResponse is the engine's answer to a Delete.
type DeleteResponse struct {
	Index   string
	Type    string
	ID      string
	Version int64

	// Found is false when no document with the given id existed.
	Found bool
}

// Query is a raw engine query body.
type Query map[string]any

// MatchAllQuery matches every document.
func MatchAllQuery() Query {
	return Query{"match_all": map[string]any{}}
}

// TermQuery matches documents whose field equals value exactly.
func TermQuery(field string, value any) Query {
	return Query{"term": map[string]any{field: value}}
}

// Sort orders search hits by a field. The pseudo-field "_score" sorts by
// relevance score.
type Sort struct {
	Field     string
	Ascending bool
}

// ScoreSort sorts by descending relevance score, the engine default.
func ScoreSort() Sort {
	return Sort{Field: "_score", Ascending: false}
}

// SearchRequest describes a query against one index.
type SearchRequest struct {
	Index string
	Type  string
	Query Query
	Sort  Sort
	From  int
	Size  int
}

// Hit is a single search result.
type Hit struct {
	Index  string
	Type   string
	ID     string
	Score  float64
	Source string
}

// SearchResponse is the raw engine search result, returned unmodified by
// the runner.
type SearchResponse struct {
	TotalHits int64
	Hits      []Hit
}

// ShardFailure describes a per-shard failure of a broadcast operation.
type ShardFailure struct {
	Index  string
	Shard  int
	Reason string
}

// BroadcastResponse is the engine's answer to flush/refresh/optimize.
type BroadcastResponse struct {
	TotalShards      int
	SuccessfulShards int
	FailedShards     int
	ShardFailures    []ShardFailure
}
