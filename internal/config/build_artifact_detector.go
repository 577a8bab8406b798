package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// BuildArtifactDetector finds language-specific build output directories by
// reading package.json, tsconfig.json, Cargo.toml and pyproject.toml.
type BuildArtifactDetector struct {
	projectRoot string
}

// NewBuildArtifactDetector creates a new build artifact detector
func NewBuildArtifactDetector(projectRoot string) *BuildArtifactDetector {
	return &BuildArtifactDetector{projectRoot: projectRoot}
}

// DetectOutputDirectories returns exclusion globs such as "**/dist/**" for
// every output directory named in the project's build files.
func (bad *BuildArtifactDetector) DetectOutputDirectories() []string {
	var dirs []string
	dirs = append(dirs, bad.detectJavaScriptOutputs()...)
	dirs = append(dirs, bad.detectRustOutputs()...)
	dirs = append(dirs, bad.detectPythonOutputs()...)

	patterns := make([]string, 0, len(dirs))
	for _, d := range dirs {
		if p, ok := outputDirPattern(d); ok {
			patterns = append(patterns, p)
		}
	}
	return DeduplicatePatterns(patterns)
}

// outputDirPattern turns "./dist/" into "**/dist/**". Paths escaping the
// project are ignored.
func outputDirPattern(dir string) (string, bool) {
	dir = strings.Trim(strings.TrimSpace(dir), "\"'")
	dir = filepath.ToSlash(filepath.Clean(dir))
	if dir == "." || dir == "" || strings.HasPrefix(dir, "..") || strings.HasPrefix(dir, "/") {
		return "", false
	}
	return "**/" + strings.TrimSuffix(dir, "/") + "/**", true
}

func (bad *BuildArtifactDetector) readJSON(name string) map[string]interface{} {
	data, err := os.ReadFile(filepath.Join(bad.projectRoot, name))
	if err != nil {
		return nil
	}
	var out map[string]interface{}
	if json.Unmarshal(data, &out) != nil {
		return nil
	}
	return out
}

func (bad *BuildArtifactDetector) readTOML(name string) map[string]interface{} {
	data, err := os.ReadFile(filepath.Join(bad.projectRoot, name))
	if err != nil {
		return nil
	}
	var out map[string]interface{}
	if toml.Unmarshal(data, &out) != nil {
		return nil
	}
	return out
}

// lookupString walks nested tables and returns the string at the end of path.
func lookupString(m map[string]interface{}, path ...string) (string, bool) {
	cur := m
	for i, k := range path {
		v, ok := cur[k]
		if !ok {
			return "", false
		}
		if i == len(path)-1 {
			s, ok := v.(string)
			return s, ok
		}
		if cur, ok = v.(map[string]interface{}); !ok {
			return "", false
		}
	}
	return "", false
}

func (bad *BuildArtifactDetector) detectJavaScriptOutputs() []string {
	var dirs []string

	if pkg := bad.readJSON("package.json"); pkg != nil {
		if scripts, ok := pkg["scripts"].(map[string]interface{}); ok {
			for _, script := range scripts {
				s, ok := script.(string)
				if !ok {
					continue
				}
				parts := strings.Fields(s)
				for i, part := range parts {
					if (part == "--outDir" || part == "-outDir") && i+1 < len(parts) {
						dirs = append(dirs, parts[i+1])
					}
				}
			}
		}
		if outDir, ok := lookupString(pkg, "build", "outDir"); ok {
			dirs = append(dirs, outDir)
		}
	}

	if tsconfig := bad.readJSON("tsconfig.json"); tsconfig != nil {
		if outDir, ok := lookupString(tsconfig, "compilerOptions", "outDir"); ok {
			dirs = append(dirs, outDir)
		}
	}

	return dirs
}

func (bad *BuildArtifactDetector) detectRustOutputs() []string {
	cargo := bad.readTOML("Cargo.toml")
	if cargo == nil {
		return nil
	}
	var dirs []string
	if dir, ok := lookupString(cargo, "profile", "release", "target-dir"); ok {
		dirs = append(dirs, dir)
	}
	if dir, ok := lookupString(cargo, "build", "target-dir"); ok {
		dirs = append(dirs, dir)
	}
	return dirs
}

func (bad *BuildArtifactDetector) detectPythonOutputs() []string {
	pyproject := bad.readTOML("pyproject.toml")
	if pyproject == nil {
		return nil
	}
	if dir, ok := lookupString(pyproject, "tool", "poetry", "build", "target-dir"); ok {
		return []string{dir}
	}
	return nil
}

// DeduplicatePatterns removes duplicate exclusion patterns, keeping order
func DeduplicatePatterns(patterns []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(patterns))

	for _, pattern := range patterns {
		if !seen[pattern] {
			seen[pattern] = true
			result = append(result, pattern)
		}
	}

	return result
}
