// Package memengine is an in-memory search engine used as the reference
// implementation of the runner's engine interfaces. It keeps cluster
// membership, indices, and documents in process memory while still
// binding real TCP ports and applying cluster-state changes
// asynchronously, so the harness exercises genuine port occupancy and
// convergence behavior without an external engine.
package memengine

import (
	"sort"
	"sync"
	"time"

	runner "github.com/ptemplier/elasticsearch-cluster-runner"
)

// Default shard layout for indices created without explicit settings.
const (
	defaultShards   = 1
	defaultReplicas = 0
)

// registry tracks all in-memory clusters in the process, keyed by cluster
// name; nodes sharing a name discover each other here.
var (
	registryMu sync.Mutex
	registry   = map[string]*cluster{}
)

// cluster is the shared state of all nodes with the same cluster name.
type cluster struct {
	name string

	mu         sync.RWMutex
	nodes      []*node // join order; the master is the first live node
	indices    map[string]*index
	relocating int

	tasks *taskQueue
}

type index struct {
	name     string
	shards   int
	replicas int
	mappings map[string]string
	docs     map[string]*document
}

type document struct {
	doctype string
	id      string
	source  string
	version int64

	// visible is false until a refresh exposes the write to searches.
	visible bool
}

func docKey(doctype, id string) string {
	return doctype + "\x00" + id
}

// joinCluster registers a node under its cluster name, creating the
// cluster on first join.
func joinCluster(name string, n *node) *cluster {
	registryMu.Lock()
	defer registryMu.Unlock()

	c, ok := registry[name]
	if !ok {
		c = &cluster{
			name:    name,
			indices: map[string]*index{},
			tasks:   newTaskQueue(),
		}
		registry[name] = c
	}

	c.mu.Lock()
	c.nodes = append(c.nodes, n)
	c.mu.Unlock()
	return c
}

// leave removes a node from its cluster. The last node out dissolves the
// cluster and stops its task worker.
func (c *cluster) leave(n *node) {
	registryMu.Lock()
	defer registryMu.Unlock()

	c.mu.Lock()
	for i, other := range c.nodes {
		if other == n {
			c.nodes = append(c.nodes[:i], c.nodes[i+1:]...)
			break
		}
	}
	empty := len(c.nodes) == 0
	c.mu.Unlock()

	if empty {
		delete(registry, c.name)
		c.tasks.stop()
	}
}

// liveNodes returns the open nodes in join order.
func (c *cluster) liveNodes() []*node {
	c.mu.RLock()
	defer c.mu.RUnlock()
	live := make([]*node, 0, len(c.nodes))
	for _, n := range c.nodes {
		if !n.IsClosed() {
			live = append(live, n)
		}
	}
	return live
}

// master returns the elected master: the first live node in join order.
func (c *cluster) master() *node {
	live := c.liveNodes()
	if len(live) == 0 {
		return nil
	}
	return live[0]
}

// health computes a point-in-time health snapshot scoped to the given
// indices (none = all). Green means every replica of every selected index
// is allocatable on a distinct live data node; yellow means only the
// primaries are; red means there is no live node at all.
func (c *cluster) health(indices ...string) *runner.ClusterHealth {
	live := c.liveNodes()
	dataNodes := 0
	for _, n := range live {
		if n.dataNode {
			dataNodes++
		}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	selected := make([]*index, 0, len(c.indices))
	if len(indices) == 0 {
		for _, idx := range c.indices {
			selected = append(selected, idx)
		}
	} else {
		for _, name := range indices {
			if idx, ok := c.indices[name]; ok {
				selected = append(selected, idx)
			}
		}
	}

	health := &runner.ClusterHealth{
		Status:           runner.StatusGreen,
		NumberOfNodes:    len(live),
		RelocatingShards: c.relocating,
		PendingTasks:     c.tasks.pendingCount(),
	}
	if len(live) == 0 {
		health.Status = runner.StatusRed
		return health
	}

	for _, idx := range selected {
		if dataNodes == 0 {
			health.Status = runner.StatusRed
			health.UnassignedShards += idx.shards * (1 + idx.replicas)
			continue
		}
		health.ActiveShards += idx.shards
		// Each replica copy needs a data node distinct from the primary's.
		allocatable := min(idx.replicas, dataNodes-1)
		health.ActiveShards += idx.shards * allocatable
		if allocatable < idx.replicas {
			health.UnassignedShards += idx.shards * (idx.replicas - allocatable)
			if health.Status == runner.StatusGreen {
				health.Status = runner.StatusYellow
			}
		}
	}
	return health
}

// state returns the cluster state for master resolution and diagnostics.
func (c *cluster) state() *runner.ClusterState {
	live := c.liveNodes()
	names := make([]string, len(live))
	for i, n := range live {
		names[i] = n.name
	}

	masterName := ""
	if m := c.master(); m != nil {
		masterName = m.name
	}

	c.mu.RLock()
	indexNames := make([]string, 0, len(c.indices))
	for name := range c.indices {
		indexNames = append(indexNames, name)
	}
	c.mu.RUnlock()
	sort.Strings(indexNames)

	return &runner.ClusterState{
		ClusterName: c.name,
		MasterNode:  masterName,
		Nodes:       names,
		Indices:     indexNames,
	}
}

// refreshIndex makes every pending write in the index visible to search.
func (idx *index) refresh() {
	for _, doc := range idx.docs {
		doc.visible = true
	}
}

// totalShardCopies counts shard copies across the selected indices for
// broadcast responses.
func (c *cluster) totalShardCopies(indices ...string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := 0
	for name, idx := range c.indices {
		if len(indices) > 0 && !contains(indices, name) {
			continue
		}
		total += idx.shards * (1 + idx.replicas)
	}
	return total
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}

// ClusterControl exposes test-only control over an in-memory cluster.
type ClusterControl struct {
	c *cluster
}

// Control returns a handle to the named cluster, or nil if no node of
// that cluster is running.
func Control(name string) *ClusterControl {
	registryMu.Lock()
	defer registryMu.Unlock()
	c, ok := registry[name]
	if !ok {
		return nil
	}
	return &ClusterControl{c: c}
}

// SetRelocatingShards overrides the relocating-shard count reported by
// health snapshots, simulating an in-progress rebalance.
func (cc *ClusterControl) SetRelocatingShards(n int) {
	cc.c.mu.Lock()
	cc.c.relocating = n
	cc.c.mu.Unlock()
}

// InjectTask queues a cluster-state update that takes the given time to
// apply, simulating a slow master.
func (cc *ClusterControl) InjectTask(desc string, delay time.Duration) {
	cc.c.tasks.submit(desc, delay, func() {})
}
