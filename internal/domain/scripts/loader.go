package scripts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
	"go.uber.org/zap"
)

// DefaultScriptGlob selects userscript files below a directory.
const DefaultScriptGlob = "**/*.user.js"

// LoadResult summarises a LoadDirectory run.
type LoadResult struct {
	Installed []string          `json:"installed"`
	Failed    map[string]string `json:"failed,omitempty"`
}

// LoadDirectory installs every file below dir whose slash-separated
// relative path matches pattern. Files are installed in path order and one
// bad file does not stop the rest.
func (m *Manager) LoadDirectory(ctx context.Context, dir, pattern string) (*LoadResult, error) {
	if pattern == "" {
		pattern = DefaultScriptGlob
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid script glob %q", pattern)
	}

	var (
		mu    sync.Mutex
		files []string
	)
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, dir, func(p string, d os.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil || d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return nil
		}
		if ok, _ := doublestar.Match(pattern, filepath.ToSlash(rel)); ok {
			mu.Lock()
			files = append(files, p)
			mu.Unlock()
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", dir, err)
	}
	sort.Strings(files)

	result := &LoadResult{Failed: make(map[string]string)}
	for _, f := range files {
		code, err := os.ReadFile(f)
		if err != nil {
			result.Failed[f] = err.Error()
			continue
		}
		saved, err := m.Install(ctx, string(code))
		if err != nil {
			m.logger.Warn("Skipping script file", zap.String("path", f), zap.Error(err))
			result.Failed[f] = err.Error()
			continue
		}
		result.Installed = append(result.Installed, saved.Script.ID)
	}

	m.logger.Info("Loaded script directory",
		zap.String("dir", dir),
		zap.Int("installed", len(result.Installed)),
		zap.Int("failed", len(result.Failed)),
	)
	return result, nil
}
