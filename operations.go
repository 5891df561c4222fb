package runner

import (
	"context"
	"fmt"
)

// onFailure is the single policy hook for engine-reported failures: with
// print-on-failure the message is emitted and execution continues with
// best-effort data, otherwise the failure becomes an error carrying the
// raw response.
func (r *Runner) onFailure(message string, response any) error {
	if r.cfg.printOnFailure {
		r.print(message)
		return nil
	}
	return &OperationError{Message: message, Response: response}
}

// CreateIndex creates an index with the given settings (nil for engine
// defaults). A non-acknowledged response goes through the failure policy.
func (r *Runner) CreateIndex(ctx context.Context, index string, settings Settings) (*AcknowledgedResponse, error) {
	cli, err := r.Client()
	if err != nil {
		return nil, err
	}
	resp, err := cli.CreateIndex(ctx, index, settings)
	if err != nil {
		r.cfg.recorder.recordOperation("create_index", false)
		return nil, err
	}
	if !resp.Acknowledged {
		r.cfg.recorder.recordOperation("create_index", false)
		return resp, r.onFailure(fmt.Sprintf("Failed to create %s.", index), resp)
	}
	r.cfg.recorder.recordOperation("create_index", true)
	return resp, nil
}

// IndexExists reports whether the index exists. The answer is returned
// as-is; a negative result is not a failure.
func (r *Runner) IndexExists(ctx context.Context, index string) (bool, error) {
	cli, err := r.Client()
	if err != nil {
		return false, err
	}
	return cli.IndexExists(ctx, index)
}

// CreateMapping puts a type mapping on an index. A non-acknowledged
// response goes through the failure policy.
func (r *Runner) CreateMapping(ctx context.Context, index, doctype, source string) (*AcknowledgedResponse, error) {
	cli, err := r.Client()
	if err != nil {
		return nil, err
	}
	resp, err := cli.PutMapping(ctx, index, doctype, source)
	if err != nil {
		r.cfg.recorder.recordOperation("create_mapping", false)
		return nil, err
	}
	if !resp.Acknowledged {
		r.cfg.recorder.recordOperation("create_mapping", false)
		return resp, r.onFailure(fmt.Sprintf("Failed to create a mapping for %s.", index), resp)
	}
	r.cfg.recorder.recordOperation("create_mapping", true)
	return resp, nil
}

// Insert writes a document and forces an immediate refresh so the write is
// visible to the next search in the same test. Replacing an existing
// document (Created=false) goes through the failure policy.
func (r *Runner) Insert(ctx context.Context, index, doctype, id, source string) (*IndexResponse, error) {
	cli, err := r.Client()
	if err != nil {
		return nil, err
	}
	resp, err := cli.Insert(ctx, IndexRequest{
		Index:   index,
		Type:    doctype,
		ID:      id,
		Source:  source,
		Refresh: true,
	})
	if err != nil {
		r.cfg.recorder.recordOperation("insert", false)
		return nil, err
	}
	if !resp.Created {
		r.cfg.recorder.recordOperation("insert", false)
		return resp, r.onFailure(fmt.Sprintf("Failed to insert %s into %s/%s.", id, index, doctype), resp)
	}
	r.cfg.recorder.recordOperation("insert", true)
	return resp, nil
}

// Delete removes a document, forcing an immediate refresh. A miss
// (Found=false) goes through the failure policy.
func (r *Runner) Delete(ctx context.Context, index, doctype, id string) (*DeleteResponse, error) {
	cli, err := r.Client()
	if err != nil {
		return nil, err
	}
	resp, err := cli.Delete(ctx, DeleteRequest{
		Index:   index,
		Type:    doctype,
		ID:      id,
		Refresh: true,
	})
	if err != nil {
		r.cfg.recorder.recordOperation("delete", false)
		return nil, err
	}
	if !resp.Found {
		r.cfg.recorder.recordOperation("delete", false)
		return resp, r.onFailure(fmt.Sprintf("Failed to delete %s from %s/%s.", id, index, doctype), resp)
	}
	r.cfg.recorder.recordOperation("delete", true)
	return resp, nil
}

// Search runs a query against one index and returns the raw engine
// response. A nil query means match-all; a nil sort means descending
// score, the engine defaults.
func (r *Runner) Search(ctx context.Context, index, doctype string, query Query, sort *Sort, from, size int) (*SearchResponse, error) {
	cli, err := r.Client()
	if err != nil {
		return nil, err
	}
	if query == nil {
		query = MatchAllQuery()
	}
	order := ScoreSort()
	if sort != nil {
		order = *sort
	}
	return cli.Search(ctx, SearchRequest{
		Index: index,
		Type:  doctype,
		Query: query,
		Sort:  order,
		From:  from,
		Size:  size,
	})
}

// Flush flushes every index, waiting out any shard relocation first.
// Shard failures go through the failure policy.
func (r *Runner) Flush(ctx context.Context) (*BroadcastResponse, error) {
	return r.broadcast(ctx, "flush", func(cli Client) (*BroadcastResponse, error) {
		return cli.Flush(ctx)
	})
}

// Refresh makes all pending writes visible to search, waiting out any
// shard relocation first.
func (r *Runner) Refresh(ctx context.Context) (*BroadcastResponse, error) {
	return r.broadcast(ctx, "refresh", func(cli Client) (*BroadcastResponse, error) {
		return cli.Refresh(ctx)
	})
}

// Optimize merges index segments, waiting out any shard relocation first.
func (r *Runner) Optimize(ctx context.Context, force bool) (*BroadcastResponse, error) {
	return r.broadcast(ctx, "optimize", func(cli Client) (*BroadcastResponse, error) {
		return cli.Optimize(ctx, force)
	})
}

// broadcast is the shared template for relocation-sensitive broadcast
// operations: wait for relocation to settle, issue the call, then route
// shard failures through the failure policy.
func (r *Runner) broadcast(ctx context.Context, op string, call func(Client) (*BroadcastResponse, error)) (*BroadcastResponse, error) {
	if _, err := r.WaitForRelocation(ctx); err != nil {
		return nil, err
	}
	cli, err := r.Client()
	if err != nil {
		return nil, err
	}
	resp, err := call(cli)
	if err != nil {
		r.cfg.recorder.recordOperation(op, false)
		return nil, err
	}
	if len(resp.ShardFailures) != 0 {
		r.cfg.recorder.recordOperation(op, false)
		return resp, r.onFailure(fmt.Sprintf("%d shard failures during %s: %v", len(resp.ShardFailures), op, resp.ShardFailures), resp)
	}
	r.cfg.recorder.recordOperation(op, true)
	return resp, nil
}
