package runner

import (
	"os"
	"path/filepath"
	"testing"
)

func newWorkspaceRunner(t *testing.T, base string) *Runner {
	t.Helper()
	r, err := New(fakeFactory(&fakeClient{}), WithBasePath(base))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return r
}

func TestPrepareBase(t *testing.T) {
	base := filepath.Join(t.TempDir(), "cluster")
	r := newWorkspaceRunner(t, base)

	if err := r.prepareBase(); err != nil {
		t.Fatalf("prepareBase() error = %v", err)
	}

	for _, dir := range []string{
		base,
		filepath.Join(base, "config"),
		filepath.Join(base, "plugins"),
	} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("stat %s: %v", dir, err)
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", dir)
		}
	}

	for _, file := range []string{"elasticsearch.yml", "logging.yml"} {
		path := filepath.Join(base, "config", file)
		if _, err := os.Stat(path); err != nil {
			t.Errorf("missing bootstrap config %s: %v", file, err)
		}
	}

	// idempotent
	if err := r.prepareBase(); err != nil {
		t.Errorf("second prepareBase() error = %v", err)
	}
}

func TestPrepareBaseKeepsExistingConfig(t *testing.T) {
	base := t.TempDir()
	confDir := filepath.Join(base, "config")
	if err := os.MkdirAll(confDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	custom := []byte("custom: true\n")
	path := filepath.Join(confDir, "elasticsearch.yml")
	if err := os.WriteFile(path, custom, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	r := newWorkspaceRunner(t, base)
	if err := r.prepareBase(); err != nil {
		t.Fatalf("prepareBase() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != string(custom) {
		t.Errorf("pre-seeded config was overwritten: %q", data)
	}
}

func TestPrepareNode(t *testing.T) {
	base := t.TempDir()
	r := newWorkspaceRunner(t, base)
	if err := r.prepareBase(); err != nil {
		t.Fatalf("prepareBase() error = %v", err)
	}

	paths, err := r.prepareNode(1)
	if err != nil {
		t.Fatalf("prepareNode() error = %v", err)
	}

	for _, dir := range []string{paths.data, paths.logs, paths.work} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("stat %s: %v", dir, err)
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", dir)
		}
		if !filepath.IsAbs(dir) {
			t.Errorf("%s is not absolute", dir)
		}
	}

	if got, want := filepath.Base(paths.data), "node_1"; got != want {
		t.Errorf("data dir = %q, want %q", got, want)
	}
	if got, want := filepath.Base(filepath.Dir(paths.data)), "data"; got != want {
		t.Errorf("data parent = %q, want %q", got, want)
	}
	if got, want := filepath.Base(filepath.Dir(paths.logs)), "logs"; got != want {
		t.Errorf("logs parent = %q, want %q", got, want)
	}
	if got, want := filepath.Base(filepath.Dir(paths.work)), "work"; got != want {
		t.Errorf("work parent = %q, want %q", got, want)
	}

	// idempotent
	if _, err := r.prepareNode(1); err != nil {
		t.Errorf("second prepareNode() error = %v", err)
	}
}

func TestRemoveAll(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "victim")
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sub", "f"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := removeAll(dir); err != nil {
		t.Fatalf("removeAll() error = %v", err)
	}
	if _, err := os.Stat(dir); err == nil {
		t.Errorf("%s still exists", dir)
	}

	// removing a missing path is fine
	if err := removeAll(dir); err != nil {
		t.Errorf("removeAll() of missing path error = %v", err)
	}
}
