package metrics

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/standardbeagle/grtags/internal/store"
	"github.com/standardbeagle/grtags/internal/types"
)

// IndexStats summarises the contents of a project store.
type IndexStats struct {
	// File-level metrics
	TotalFiles           int64
	IndexedFiles         int64 // files with at least one tag location
	LanguageDistribution map[string]FileLanguageStats

	// Token-level metrics
	TotalTokens      int64
	TotalLocations   int64
	TotalDefinitions int64
	TotalReferences  int64

	MaxLocationsPerToken int64
	BusiestToken         string
	UndefinedTokens      int64 // referenced but never defined
}

// FileLanguageStats represents metrics for a specific language
type FileLanguageStats struct {
	FileCount      int64
	LocationCount  int64
	FileExtensions map[string]int64 // extension -> count
}

// LanguageFunc names the language of a project-relative path, or returns
// "" when unknown.
type LanguageFunc func(path string) string

func NewIndexStats() *IndexStats {
	return &IndexStats{LanguageDistribution: make(map[string]FileLanguageStats)}
}

// ComputeIndexStats reads both namespaces of db under read locks.
func ComputeIndexStats(db *store.DB, language LanguageFunc) (*IndexStats, error) {
	s := NewIndexStats()

	files := db.Files(store.ReadLock)
	paths := make(map[types.FileID]string)
	err := files.Range(func(rel string, _ int64) bool {
		paths[types.FileIDFor(rel)] = rel
		return true
	})
	files.Release()
	if err != nil {
		return nil, err
	}
	s.ComputeLanguageDistribution(paths, language)

	perFile := make(map[types.FileID]int64)
	tags := db.Tags(store.ReadLock)
	err = tags.Range(func(token string, set types.LocationSet) bool {
		s.addToken(token, set, perFile)
		return true
	})
	tags.Release()
	if err != nil {
		return nil, err
	}

	for id, n := range perFile {
		rel, ok := paths[id]
		if !ok {
			continue
		}
		s.IndexedFiles++
		lang := languageOf(rel, language)
		stats := s.LanguageDistribution[lang]
		stats.LocationCount += n
		s.LanguageDistribution[lang] = stats
	}
	return s, nil
}

// ComputeLanguageDistribution derives language stats from file paths and extensions
func (s *IndexStats) ComputeLanguageDistribution(paths map[types.FileID]string, language LanguageFunc) {
	s.LanguageDistribution = make(map[string]FileLanguageStats)
	s.TotalFiles = 0
	for _, rel := range paths {
		lang := languageOf(rel, language)
		stats, ok := s.LanguageDistribution[lang]
		if !ok {
			stats = FileLanguageStats{FileExtensions: make(map[string]int64)}
		}
		stats.FileCount++
		if ext := strings.ToLower(filepath.Ext(rel)); ext != "" {
			stats.FileExtensions[ext]++
		}
		s.LanguageDistribution[lang] = stats
		s.TotalFiles++
	}
}

func (s *IndexStats) addToken(token string, set types.LocationSet, perFile map[types.FileID]int64) {
	s.TotalTokens++
	n := int64(len(set))
	s.TotalLocations += n
	if n > s.MaxLocationsPerToken || (n == s.MaxLocationsPerToken && token < s.BusiestToken) {
		s.MaxLocationsPerToken = n
		s.BusiestToken = token
	}
	defined := false
	for loc, flag := range set {
		perFile[loc.File]++
		if flag == types.FlagDefinition {
			s.TotalDefinitions++
			defined = true
		} else {
			s.TotalReferences++
		}
	}
	if !defined {
		s.UndefinedTokens++
	}
}

func languageOf(rel string, language LanguageFunc) string {
	if language != nil {
		if lang := language(rel); lang != "" {
			return lang
		}
	}
	return "other"
}

// FormatAsJSON returns stats formatted as JSON-serializable map
func (s *IndexStats) FormatAsJSON() map[string]interface{} {
	languages := make([]map[string]interface{}, 0, len(s.LanguageDistribution))
	for lang, stats := range s.LanguageDistribution {
		languages = append(languages, map[string]interface{}{
			"language":   lang,
			"files":      stats.FileCount,
			"locations":  stats.LocationCount,
			"extensions": stats.FileExtensions,
		})
	}
	sort.Slice(languages, func(i, j int) bool {
		return languages[i]["language"].(string) < languages[j]["language"].(string)
	})

	return map[string]interface{}{
		"summary": map[string]interface{}{
			"total_files":   s.TotalFiles,
			"indexed_files": s.IndexedFiles,
			"tokens":        s.TotalTokens,
			"locations":     s.TotalLocations,
		},
		"languages": languages,
		"tokens": map[string]interface{}{
			"definitions":   s.TotalDefinitions,
			"references":    s.TotalReferences,
			"max_locations": s.MaxLocationsPerToken,
			"busiest":       s.BusiestToken,
			"undefined":     s.UndefinedTokens,
		},
	}
}

// FormatAsText returns stats formatted as human-readable text
func (s *IndexStats) FormatAsText() string {
	var sb strings.Builder

	sb.WriteString("SUMMARY\n")
	sb.WriteString("─────────────────────────────────────────────\n")
	sb.WriteString(fmt.Sprintf("  Files:              %d\n", s.TotalFiles))
	sb.WriteString(fmt.Sprintf("  Files with tags:    %d\n", s.IndexedFiles))
	sb.WriteString(fmt.Sprintf("  Tokens:             %d\n", s.TotalTokens))
	sb.WriteString(fmt.Sprintf("  Locations:          %d\n", s.TotalLocations))

	sb.WriteString("\nLANGUAGES\n")
	sb.WriteString("─────────────────────────────────────────────\n")
	type langStats struct {
		name  string
		stats FileLanguageStats
	}
	langs := make([]langStats, 0, len(s.LanguageDistribution))
	for name, stats := range s.LanguageDistribution {
		langs = append(langs, langStats{name, stats})
	}
	// By file count, then name
	sort.Slice(langs, func(i, j int) bool {
		if langs[i].stats.FileCount != langs[j].stats.FileCount {
			return langs[i].stats.FileCount > langs[j].stats.FileCount
		}
		return langs[i].name < langs[j].name
	})
	for _, lang := range langs {
		sb.WriteString(fmt.Sprintf("  %-12s %5d files  %8d locations\n",
			lang.name+":", lang.stats.FileCount, lang.stats.LocationCount))
	}

	sb.WriteString("\nTOKENS\n")
	sb.WriteString("─────────────────────────────────────────────\n")
	sb.WriteString(fmt.Sprintf("  Definitions:        %d\n", s.TotalDefinitions))
	sb.WriteString(fmt.Sprintf("  References:         %d\n", s.TotalReferences))
	if s.BusiestToken != "" {
		sb.WriteString(fmt.Sprintf("  Busiest:            %s (%d)\n", s.BusiestToken, s.MaxLocationsPerToken))
	}
	sb.WriteString(fmt.Sprintf("  Never defined:      %d\n", s.UndefinedTokens))

	return sb.String()
}
