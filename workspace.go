package runner

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Directory layout under the base path.
const (
	configDirName  = "config"
	pluginsDirName = "plugins"
	dataDirName    = "data"
	logsDirName    = "logs"
	workDirName    = "work"

	engineConfigFile  = "elasticsearch.yml"
	loggingConfigFile = "logging.yml"
)

// nodePaths holds the absolute per-node directory layout.
type nodePaths struct {
	conf    string
	plugins string
	data    string
	logs    string
	work    string
}

// defaultEngineConfig is the bootstrap engine configuration written to
// config/elasticsearch.yml when the file does not exist yet. Nodes read it
// before their programmatic settings are applied.
var defaultEngineConfig = map[string]any{
	"index": map[string]any{
		"number_of_shards":   1,
		"number_of_replicas": 0,
	},
	"discovery": map[string]any{
		"zen": map[string]any{
			"ping": map[string]any{
				"multicast": map[string]any{"enabled": false},
			},
		},
	},
}

// defaultLoggingConfig is the bootstrap logging configuration written to
// config/logging.yml when the file does not exist yet.
var defaultLoggingConfig = map[string]any{
	"rootLogger": "INFO, console",
	"appender": map[string]any{
		"console": map[string]any{
			"type": "console",
			"layout": map[string]any{
				"type":              "consolePattern",
				"conversionPattern": "[%d{ISO8601}][%-5p][%-25c] %m%n",
			},
		},
	},
}

// prepareBase creates the base path, the process-wide config and plugins
// directories, and the two bootstrap config files. Existing directories
// and files are left untouched.
func (r *Runner) prepareBase() error {
	if err := r.createDir(r.cfg.basePath); err != nil {
		return err
	}

	confPath := filepath.Join(r.cfg.basePath, configDirName)
	if err := r.createDir(confPath); err != nil {
		return err
	}
	if err := r.createDir(filepath.Join(r.cfg.basePath, pluginsDirName)); err != nil {
		return err
	}

	if err := writeConfigTemplate(filepath.Join(confPath, engineConfigFile), defaultEngineConfig); err != nil {
		return err
	}
	return writeConfigTemplate(filepath.Join(confPath, loggingConfigFile), defaultLoggingConfig)
}

// prepareNode creates the per-node data, logs, and work directories and
// returns the node's absolute path layout. Creation is idempotent.
func (r *Runner) prepareNode(index int) (nodePaths, error) {
	nodeDir := fmt.Sprintf("node_%d", index)
	paths := nodePaths{
		conf:    absPath(filepath.Join(r.cfg.basePath, configDirName)),
		plugins: absPath(filepath.Join(r.cfg.basePath, pluginsDirName)),
		data:    absPath(filepath.Join(r.cfg.basePath, dataDirName, nodeDir)),
		logs:    absPath(filepath.Join(r.cfg.basePath, logsDirName, nodeDir)),
		work:    absPath(filepath.Join(r.cfg.basePath, workDirName, nodeDir)),
	}

	for _, dir := range []string{paths.data, paths.logs, paths.work} {
		if err := r.createDir(dir); err != nil {
			return nodePaths{}, err
		}
	}
	return paths, nil
}

// createDir creates a directory and its parents. Pre-existing directories
// are skipped silently; a creation failure is fatal since a node cannot
// start without writable storage.
func (r *Runner) createDir(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	r.print("Creating " + path)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWorkspace, path, err)
	}
	return nil
}

// writeConfigTemplate renders a bootstrap config file from its default
// content. The write happens at most once: an existing file is never
// replaced, so callers can pre-seed custom configs before Build.
func writeConfigTemplate(path string, content map[string]any) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	data, err := yaml.Marshal(content)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWorkspace, path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWorkspace, path, err)
	}
	return nil
}

// removeAll deletes a path recursively and verifies nothing survived.
func removeAll(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("%w: %v", ErrCleanResidue, err)
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s still exists", ErrCleanResidue, path)
	}
	return nil
}

func absPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
