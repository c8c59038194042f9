package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Load reads, merges, templates, and validates the ordered list of config
// documents, per SPEC_FULL.md §4.1. Later paths override earlier ones.
func Load(paths []string) (*Config, error) {
	l := log.WithFields(log.Fields{"action": "config.Load", "files": paths})
	l.Debug("loading config documents")

	if len(paths) == 0 {
		return nil, &Error{Reason: "no config files given (use -f/--file)"}
	}

	merged := map[string]interface{}{}
	for _, path := range paths {
		tree, err := readDocument(path)
		if err != nil {
			return nil, err
		}
		annotateDeclaringDocument(tree, path)
		merged = Merge(merged, tree)
	}

	if err := renderTemplates(merged, filepath.Dir(paths[len(paths)-1])); err != nil {
		return nil, err
	}

	cfg, err := decode(merged)
	if err != nil {
		return nil, err
	}

	resolveSourcePaths(cfg)
	stripDeclaredInAnnotations(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func readDocument(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errf(path, "failed to read config file: %v", err)
	}
	var tree map[string]interface{}
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, errf(path, "failed to parse YAML: %v", err)
	}
	if tree == nil {
		tree = map[string]interface{}{}
	}
	return tree, nil
}

// annotateDeclaringDocument stamps every entry of the name-keyed `sources`
// and `sinks` lists with the document that introduced it, so relative
// source-option paths can later be resolved against the right directory
// even after several documents have merged onto the same entry.
func annotateDeclaringDocument(tree map[string]interface{}, path string) {
	for _, key := range []string{"sources", "sinks"} {
		list, ok := tree[key].([]interface{})
		if !ok {
			continue
		}
		for _, el := range list {
			if m, ok := el.(map[string]interface{}); ok {
				m["declared_in"] = path
			}
		}
	}
}

// renderTemplates expands {{ ... }} placeholders over every string value in
// the merged document tree. `vars` is resolved first (OS env plus the
// document's own `vars` map) and used as the variable scope for everything
// else. lookup('file', ...) calls inside a `sources`/`sinks` entry resolve
// relative to that entry's declared_in; everywhere else resolves relative
// to defaultBaseDir (the last config file's directory).
func renderTemplates(tree map[string]interface{}, defaultBaseDir string) error {
	rawVars, _ := tree["vars"].(map[string]interface{})
	varMap := make(map[string]string, len(rawVars))
	for k, v := range rawVars {
		if s, ok := v.(string); ok {
			varMap[k] = s
		} else {
			varMap[k] = fmt.Sprintf("%v", v)
		}
	}
	vars := NewVars(varMap)

	for key, val := range tree {
		baseDir := defaultBaseDir
		switch key {
		case "sources", "sinks":
			list, ok := val.([]interface{})
			if !ok {
				continue
			}
			for _, el := range list {
				m, ok := el.(map[string]interface{})
				if !ok {
					continue
				}
				entryBaseDir := baseDir
				if declaredIn, ok := m["declared_in"].(string); ok && declaredIn != "" {
					entryBaseDir = filepath.Dir(declaredIn)
				}
				if err := renderNode(m, Resolver{Vars: vars, BaseDir: entryBaseDir}); err != nil {
					return err
				}
			}
		default:
			if err := renderNode(val, Resolver{Vars: vars, BaseDir: baseDir}); err != nil {
				return err
			}
		}
	}
	return nil
}

// renderNode walks a generic YAML-decoded node (map/slice/string) in place,
// rendering every string leaf.
func renderNode(node interface{}, r Resolver) error {
	switch typed := node.(type) {
	case map[string]interface{}:
		for k, v := range typed {
			if s, ok := v.(string); ok {
				rendered, err := r.Render(s)
				if err != nil {
					return err
				}
				typed[k] = rendered
				continue
			}
			if err := renderNode(v, r); err != nil {
				return err
			}
		}
	case []interface{}:
		for i, v := range typed {
			if s, ok := v.(string); ok {
				rendered, err := r.Render(s)
				if err != nil {
					return err
				}
				typed[i] = rendered
				continue
			}
			if err := renderNode(v, r); err != nil {
				return err
			}
		}
	}
	return nil
}

func decode(tree map[string]interface{}) (*Config, error) {
	data, err := yaml.Marshal(tree)
	if err != nil {
		return nil, errf("", "failed to re-serialize merged config: %v", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errf("", "failed to decode merged config: %v", err)
	}
	return &cfg, nil
}

// resolveSourcePaths resolves relative file paths in source options against
// the directory of the declaring document, per SPEC_FULL.md §4.1. Only the
// yaml adapter's `files` list carries file paths outside of lookup()
// expressions, which are resolved separately during templating.
func resolveSourcePaths(cfg *Config) {
	for i := range cfg.Sources {
		s := &cfg.Sources[i]
		if s.Type != "yaml" || s.YAML == nil || s.DeclaredIn == "" {
			continue
		}
		baseDir := filepath.Dir(s.DeclaredIn)
		for j, f := range s.YAML.Files {
			if !filepath.IsAbs(f) {
				s.YAML.Files[j] = filepath.Join(baseDir, f)
			}
		}
	}
}

// stripDeclaredInAnnotations discards declared_in once relative-path
// resolution is complete, per SPEC_FULL.md §3 ("Config file origin").
func stripDeclaredInAnnotations(cfg *Config) {
	for i := range cfg.Sources {
		cfg.Sources[i].DeclaredIn = ""
	}
	for i := range cfg.Sinks {
		_ = i // sinks carry no path-relative options; nothing to strip
	}
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validate(cfg *Config) error {
	seenSources := map[string]bool{}
	for _, s := range cfg.Sources {
		if s.Name == "" {
			return errf(s.DeclaredIn, "source entry missing required field: name")
		}
		if seenSources[s.Name] {
			return errf(s.DeclaredIn, "duplicate source name %q", s.Name)
		}
		seenSources[s.Name] = true

		switch s.Type {
		case "env", "yaml", "1password", "keeper":
		default:
			return errf(s.DeclaredIn, "source %q: unknown type %q", s.Name, s.Type)
		}
	}

	seenSinks := map[string]bool{}
	for _, sink := range cfg.Sinks {
		if sink.Name == "" {
			return errf("", "sink entry missing required field: name")
		}
		if seenSinks[sink.Name] {
			return errf("", "duplicate sink name %q", sink.Name)
		}
		seenSinks[sink.Name] = true

		switch sink.Type {
		case "ssm", "secrets_manager":
		default:
			return errf("", "sink %q: unknown type %q", sink.Name, sink.Type)
		}

		for _, srcName := range sink.Sources.Names {
			if !seenSources[srcName] {
				return errf("", "sink %q references undeclared source %q", sink.Name, srcName)
			}
		}

		concurrency, rateLimit := sinkLimits(sink)
		if concurrency <= 0 {
			return errf("", "sink %q: concurrency must be positive", sink.Name)
		}
		if rateLimit <= 0 {
			return errf("", "sink %q: rate_limit_rps must be positive", sink.Name)
		}

		if sink.Type == "ssm" {
			if sink.SSM != nil && sink.SSM.Type != "" &&
				sink.SSM.Type != SSMTypeSecureString && sink.SSM.Type != SSMTypeString {
				return errf("", "sink %q: invalid ssm.type %q", sink.Name, sink.SSM.Type)
			}
		}
	}
	return nil
}

// sinkLimits resolves the effective (concurrency, rate_limit_rps) for a
// sink, applying the defaults of SPEC_FULL.md §4.9.
func sinkLimits(sink SinkSpec) (concurrency, rateLimitRPS int) {
	concurrency, rateLimitRPS = defaultConcurrency, defaultRateLimitRPS
	switch sink.Type {
	case "ssm":
		if sink.SSM != nil {
			if sink.SSM.Concurrency != 0 {
				concurrency = sink.SSM.Concurrency
			}
			if sink.SSM.RateLimitRPS != 0 {
				rateLimitRPS = sink.SSM.RateLimitRPS
			}
		}
	case "secrets_manager":
		if sink.Secrets != nil {
			if sink.Secrets.Concurrency != 0 {
				concurrency = sink.Secrets.Concurrency
			}
			if sink.Secrets.RateLimitRPS != 0 {
				rateLimitRPS = sink.Secrets.RateLimitRPS
			}
		}
	}
	return concurrency, rateLimitRPS
}

// SinkLimits exposes the effective (concurrency, rate_limit_rps) for a sink
// to the dispatch layer.
func SinkLimits(sink SinkSpec) (concurrency, rateLimitRPS int) {
	return sinkLimits(sink)
}
