package memengine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	runner "github.com/ptemplier/elasticsearch-cluster-runner"
)

// client adapts one node to the runner's full capability surface.
type client struct {
	n *node
}

// Health returns a point-in-time health snapshot.
func (cl *client) Health(ctx context.Context, indices ...string) (*runner.ClusterHealth, error) {
	c, err := cl.n.cluster()
	if err != nil {
		return nil, err
	}
	return c.health(indices...), nil
}

// State returns the current cluster state.
func (cl *client) State(ctx context.Context) (*runner.ClusterState, error) {
	c, err := cl.n.cluster()
	if err != nil {
		return nil, err
	}
	return c.state(), nil
}

// PendingTasks returns descriptions of cluster-state updates that have
// not been applied yet.
func (cl *client) PendingTasks(ctx context.Context) ([]string, error) {
	c, err := cl.n.cluster()
	if err != nil {
		return nil, err
	}
	return c.tasks.pending(), nil
}

// CreateIndex creates an index. Creating an index that already exists is
// not acknowledged.
func (cl *client) CreateIndex(ctx context.Context, name string, settings runner.Settings) (*runner.AcknowledgedResponse, error) {
	c, err := cl.n.cluster()
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	_, exists := c.indices[name]
	c.mu.RUnlock()
	if exists {
		return &runner.AcknowledgedResponse{Acknowledged: false}, nil
	}

	err = c.tasks.submitWait(ctx, "create-index ["+name+"]", func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.indices[name]; ok {
			return
		}
		c.indices[name] = &index{
			name:     name,
			shards:   intSetting(settings, "index.number_of_shards", defaultShards),
			replicas: intSetting(settings, "index.number_of_replicas", defaultReplicas),
			mappings: map[string]string{},
			docs:     map[string]*document{},
		}
	})
	if err != nil {
		return nil, err
	}
	return &runner.AcknowledgedResponse{Acknowledged: true}, nil
}

// IndexExists reports whether the index exists.
func (cl *client) IndexExists(ctx context.Context, name string) (bool, error) {
	c, err := cl.n.cluster()
	if err != nil {
		return false, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.indices[name]
	return ok, nil
}

// PutMapping stores a type mapping on an existing index.
func (cl *client) PutMapping(ctx context.Context, name, doctype, source string) (*runner.AcknowledgedResponse, error) {
	c, err := cl.n.cluster()
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	_, exists := c.indices[name]
	c.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("memengine: no such index [%s]", name)
	}

	err = c.tasks.submitWait(ctx, "put-mapping ["+name+"]["+doctype+"]", func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if idx, ok := c.indices[name]; ok {
			idx.mappings[doctype] = source
		}
	})
	if err != nil {
		return nil, err
	}
	return &runner.AcknowledgedResponse{Acknowledged: true}, nil
}

// Insert writes a document, creating the index on first use. The write is
// invisible to searches until a refresh unless the request forces one.
func (cl *client) Insert(ctx context.Context, req runner.IndexRequest) (*runner.IndexResponse, error) {
	c, err := cl.n.cluster()
	if err != nil {
		return nil, err
	}

	if exists, _ := cl.IndexExists(ctx, req.Index); !exists {
		if _, err := cl.CreateIndex(ctx, req.Index, nil); err != nil {
			return nil, err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	idx, ok := c.indices[req.Index]
	if !ok {
		return nil, fmt.Errorf("memengine: no such index [%s]", req.Index)
	}

	key := docKey(req.Type, req.ID)
	previous := idx.docs[key]
	version := int64(1)
	if previous != nil {
		version = previous.version + 1
	}
	idx.docs[key] = &document{
		doctype: req.Type,
		id:      req.ID,
		source:  req.Source,
		version: version,
		visible: false,
	}
	if req.Refresh {
		idx.refresh()
	}

	return &runner.IndexResponse{
		Index:   req.Index,
		Type:    req.Type,
		ID:      req.ID,
		Version: version,
		Created: previous == nil,
	}, nil
}

// Delete removes a document. Deleting from a missing index or a missing
// id is reported as not found, not as an error.
func (cl *client) Delete(ctx context.Context, req runner.DeleteRequest) (*runner.DeleteResponse, error) {
	c, err := cl.n.cluster()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	resp := &runner.DeleteResponse{Index: req.Index, Type: req.Type, ID: req.ID}
	idx, ok := c.indices[req.Index]
	if !ok {
		return resp, nil
	}
	key := docKey(req.Type, req.ID)
	doc, ok := idx.docs[key]
	if !ok {
		return resp, nil
	}
	delete(idx.docs, key)
	if req.Refresh {
		idx.refresh()
	}
	resp.Found = true
	resp.Version = doc.version + 1
	return resp, nil
}

// Search runs a query against one index, seeing only refreshed writes.
func (cl *client) Search(ctx context.Context, req runner.SearchRequest) (*runner.SearchResponse, error) {
	c, err := cl.n.cluster()
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	idx, ok := c.indices[req.Index]
	if !ok {
		c.mu.RUnlock()
		return nil, fmt.Errorf("memengine: no such index [%s]", req.Index)
	}

	var hits []runner.Hit
	for _, doc := range idx.docs {
		if !doc.visible {
			continue
		}
		if req.Type != "" && doc.doctype != req.Type {
			continue
		}
		if !matches(req.Query, doc.source) {
			continue
		}
		hits = append(hits, runner.Hit{
			Index:  req.Index,
			Type:   doc.doctype,
			ID:     doc.id,
			Score:  1.0,
			Source: doc.source,
		})
	}
	c.mu.RUnlock()

	sortHits(hits, req.Sort)

	total := int64(len(hits))
	from := req.From
	if from < 0 {
		from = 0
	}
	if from > len(hits) {
		from = len(hits)
	}
	end := from + req.Size
	if req.Size <= 0 || end > len(hits) {
		end = len(hits)
	}

	return &runner.SearchResponse{
		TotalHits: total,
		Hits:      hits[from:end],
	}, nil
}

// Flush is a no-op beyond reporting shard counts; all data is in memory.
func (cl *client) Flush(ctx context.Context, indices ...string) (*runner.BroadcastResponse, error) {
	return cl.broadcast(indices...)
}

// Refresh makes all pending writes visible to searches.
func (cl *client) Refresh(ctx context.Context, indices ...string) (*runner.BroadcastResponse, error) {
	c, err := cl.n.cluster()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	for name, idx := range c.indices {
		if len(indices) > 0 && !contains(indices, name) {
			continue
		}
		idx.refresh()
	}
	c.mu.Unlock()

	return cl.broadcast(indices...)
}

// Optimize is a no-op beyond reporting shard counts.
func (cl *client) Optimize(ctx context.Context, force bool, indices ...string) (*runner.BroadcastResponse, error) {
	return cl.broadcast(indices...)
}

func (cl *client) broadcast(indices ...string) (*runner.BroadcastResponse, error) {
	c, err := cl.n.cluster()
	if err != nil {
		return nil, err
	}
	total := c.totalShardCopies(indices...)
	return &runner.BroadcastResponse{
		TotalShards:      total,
		SuccessfulShards: total,
	}, nil
}

func intSetting(settings runner.Settings, key string, fallback int) int {
	if settings == nil {
		return fallback
	}
	if raw := settings.Get(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			return v
		}
	}
	return fallback
}

// matches evaluates the supported query shapes against a JSON document
// source: match_all, and term as exact field equality.
func matches(query runner.Query, source string) bool {
	if len(query) == 0 {
		return true
	}
	if _, ok := query["match_all"]; ok {
		return true
	}
	if term, ok := query["term"].(map[string]any); ok {
		fields := parseSource(source)
		for field, want := range term {
			got, ok := fields[field]
			if !ok || stringify(got) != stringify(want) {
				return false
			}
		}
		return true
	}
	// Unknown query shapes match nothing.
	return false
}

// parseSource flattens a JSON document into dotted field paths.
func parseSource(source string) map[string]any {
	var raw map[string]any
	if err := json.Unmarshal([]byte(source), &raw); err != nil {
		return map[string]any{}
	}
	fields := map[string]any{}
	flattenFields(fields, "", raw)
	return fields
}

func flattenFields(fields map[string]any, prefix string, value any) {
	if nested, ok := value.(map[string]any); ok {
		for key, child := range nested {
			full := key
			if prefix != "" {
				full = prefix + "." + key
			}
			flattenFields(fields, full, child)
		}
		return
	}
	if prefix != "" {
		fields[prefix] = value
	}
}

func stringify(value any) string {
	switch v := value.(type) {
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

// sortHits orders hits by the requested field, ids breaking ties so
// results stay deterministic.
func sortHits(hits []runner.Hit, order runner.Sort) {
	sort.SliceStable(hits, func(i, j int) bool {
		var less, equal bool
		if order.Field == "" || order.Field == "_score" {
			less = hits[i].Score < hits[j].Score
			equal = hits[i].Score == hits[j].Score
		} else {
			a := stringify(parseSource(hits[i].Source)[order.Field])
			b := stringify(parseSource(hits[j].Source)[order.Field])
			less, equal = compareValues(a, b)
		}
		if equal {
			return hits[i].ID < hits[j].ID
		}
		if order.Ascending {
			return less
		}
		return !less
	})
}

// compareValues compares numerically when both sides parse as numbers,
// lexically otherwise.
func compareValues(a, b string) (less, equal bool) {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil {
		return fa < fb, fa == fb
	}
	return a < b, a == b
}

var _ runner.Client = (*client)(nil)

// Guard against drifting from the capability sub-interfaces.
var (
	_ runner.HealthAPI    = (*client)(nil)
	_ runner.IndicesAPI   = (*client)(nil)
	_ runner.DocumentsAPI = (*client)(nil)
	_ runner.SearchAPI    = (*client)(nil)
)
