package runner

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Settings maps dotted configuration keys to string values. It is the
// resolved configuration handed to a node at construction time.
type Settings map[string]string

// Set stores a value, replacing any existing one.
func (s Settings) Set(key, value string) {
	s[key] = value
}

// SetIfAbsent stores a value only when the key has not been set yet.
// Empty values are ignored. This is the merge rule that lets build-hook
// overrides win over runner defaults.
func (s Settings) SetIfAbsent(key, value string) {
	if value == "" {
		return
	}
	if _, ok := s[key]; !ok {
		s[key] = value
	}
}

// Get returns the value for key, or the empty string.
func (s Settings) Get(key string) string {
	return s[key]
}

// Clone returns an independent copy of the settings.
func (s Settings) Clone() Settings {
	out := make(Settings, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Keys returns all keys in sorted order.
func (s Settings) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// BuildHook customizes the settings of a single node before the runner
// applies its defaults. It receives the 1-based node index and a mutable
// settings accumulator; anything the hook sets is never overwritten.
type BuildHook func(index int, settings Settings)

// LoadSettings reads a YAML file into a Settings map. Nested mappings are
// flattened into dotted keys, so both
//
//	index.number_of_replicas: 0
//
// and
//
//	index:
//	  number_of_replicas: 0
//
// produce the key "index.number_of_replicas".
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConfig, path, err)
	}
	settings := Settings{}
	flattenInto(settings, "", raw)
	return settings, nil
}

func flattenInto(settings Settings, prefix string, value any) {
	switch v := value.(type) {
	case map[string]any:
		for key, child := range v {
			full := key
			if prefix != "" {
				full = prefix + "." + key
			}
			flattenInto(settings, full, child)
		}
	case nil:
		// skip null values
	default:
		if prefix != "" {
			settings[prefix] = fmt.Sprintf("%v", v)
		}
	}
}

// buildNodeSettings merges the build-hook overrides, the node's workspace
// paths, and the identity/topology defaults into the final settings map.
// Overrides applied by the hook always survive the merge.
func buildNodeSettings(cfg *config, index int, paths nodePaths, transportPort, httpPort int) Settings {
	settings := Settings{}

	if cfg.buildHook != nil {
		cfg.buildHook(index, settings)
	}

	settings.SetIfAbsent("path.conf", paths.conf)
	settings.SetIfAbsent("path.data", paths.data)
	settings.SetIfAbsent("path.work", paths.work)
	settings.SetIfAbsent("path.logs", paths.logs)
	settings.SetIfAbsent("path.plugins", paths.plugins)

	settings.SetIfAbsent("cluster.name", cfg.clusterName)
	settings.SetIfAbsent("node.name", nodeName(index))
	settings.SetIfAbsent("node.master", "true")
	settings.SetIfAbsent("node.data", "true")
	settings.SetIfAbsent("http.enabled", "true")
	settings.SetIfAbsent("transport.tcp.port", fmt.Sprintf("%d", transportPort))
	settings.SetIfAbsent("http.port", fmt.Sprintf("%d", httpPort))
	settings.SetIfAbsent("index.store.type", cfg.indexStoreType)

	return settings
}

// nodeName returns the conventional name for the node at the given
// 1-based index.
func nodeName(index int) string {
	return fmt.Sprintf("Node %d", index)
}
