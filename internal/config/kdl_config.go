package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
)

// LoadKDL attempts to load configuration from the .grtags.kdl file in dir.
// A missing file yields (nil, nil).
func LoadKDL(dir string) (*Config, error) {
	kdlPath := filepath.Join(dir, ConfigFileName)

	if _, err := os.Stat(kdlPath); os.IsNotExist(err) {
		return nil, nil
	}

	content, err := os.ReadFile(kdlPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ConfigFileName, err)
	}

	cfg, err := parseKDL(string(content))
	if err != nil {
		return nil, err
	}

	// Relative roots resolve against the directory holding the config file
	if cfg.Project.Root != "" {
		root := cfg.Project.Root
		if !filepath.IsAbs(root) {
			root = filepath.Join(dir, root)
		}
		if abs, err := filepath.Abs(root); err == nil {
			root = abs
		}
		cfg.Project.Root = filepath.Clean(root)
	} else {
		absRoot, err := filepath.Abs(dir)
		if err == nil {
			cfg.Project.Root = absRoot
		} else {
			cfg.Project.Root = dir
		}
	}

	cfg.EnrichExclusionsWithBuildArtifacts()
	return cfg, nil
}

// parseKDL reads a KDL document on top of the defaults. The project root is
// left empty when the document does not set one.
func parseKDL(content string) (*Config, error) {
	cfg := Default("")

	doc, err := kdl.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse KDL config: %w", err)
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "project":
			for _, cn := range n.Children { // project { root "." name "foo" }
				assignSimpleString(cn, "root", func(v string) { cfg.Project.Root = v })
				assignSimpleString(cn, "name", func(v string) { cfg.Project.Name = v })
			}
		case "index":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "max_file_size":
					if v, ok := firstIntArg(cn); ok {
						cfg.Index.MaxFileSize = int64(v)
					}
					if s, ok := firstStringArg(cn); ok {
						if sz, err := parseSize(s); err == nil {
							cfg.Index.MaxFileSize = sz
						} else {
							log.Printf("Warning: invalid max_file_size %q in %s: %v", s, ConfigFileName, err)
						}
					}
				case "follow_symlinks":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Index.FollowSymlinks = b
					}
				case "respect_gitignore":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Index.RespectGitignore = b
					}
				case "watch_mode":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Index.WatchMode = b
					}
				case "watch_debounce_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Index.WatchDebounceMs = v
					}
				case "rescan_interval_sec":
					if v, ok := firstIntArg(cn); ok {
						cfg.Index.RescanIntervalSec = v
					}
				}
			}
		case "performance":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "parallel_file_workers":
					if v, ok := firstIntArg(cn); ok {
						cfg.Performance.ParallelFileWorkers = v
					}
				}
			}
		case "store":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "dir":
					if s, ok := firstStringArg(cn); ok {
						cfg.Store.Dir = s
					}
				case "sync":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Store.Sync = b
					}
				case "in_memory":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Store.InMemory = b
					}
				}
			}
		case "include":
			cfg.Include = append(cfg.Include, collectStringArgs(n)...)
		case "exclude":
			// An exclude block replaces the default exclusions
			cfg.Exclude = collectStringArgs(n)
		}
	}

	return cfg, nil
}

func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}

func firstBoolArg(n *document.Node) (bool, bool) {
	if len(n.Arguments) == 0 {
		return false, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case bool:
		return v, true
	case string:
		return parseBool(v), true
	}
	return false, false
}

func collectStringArgs(n *document.Node) []string {
	if n == nil {
		return nil
	}
	// Inline form: include "a" "b"
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}

	// Block form: exclude { "a"; "b" } where each string is a child node name
	if len(out) == 0 && len(n.Children) > 0 {
		out = make([]string, 0, len(n.Children))
		for _, child := range n.Children {
			if s, ok := firstStringArg(child); ok {
				out = append(out, s)
			} else if child.Name != nil {
				if s, ok := child.Name.Value.(string); ok {
					out = append(out, s)
				}
			}
		}
	}

	return out
}

func assignSimpleString(n *document.Node, target string, set func(string)) {
	if nodeName(n) == target {
		if s, ok := firstStringArg(n); ok {
			set(s)
		}
	}
}

// parseSize handles size strings like "10MB", "500KB", "1GB"
func parseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))

	var multiplier int64 = 1
	var numStr string

	switch {
	case strings.HasSuffix(s, "GB"):
		multiplier = 1024 * 1024 * 1024
		numStr = strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "MB"):
		multiplier = 1024 * 1024
		numStr = strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "KB"):
		multiplier = 1024
		numStr = strings.TrimSuffix(s, "KB")
	case strings.HasSuffix(s, "B"):
		numStr = strings.TrimSuffix(s, "B")
	default:
		numStr = s
	}

	num, err := strconv.ParseInt(strings.TrimSpace(numStr), 10, 64)
	if err != nil {
		return 0, err
	}

	return num * multiplier, nil
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "yes" || s == "1" || s == "on"
}
