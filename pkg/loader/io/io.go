package io

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/OFFIS-RIT/netunion/pkg/loader"
	"github.com/OFFIS-RIT/netunion/pkg/logger"

	"golang.org/x/sync/singleflight"
)

// IONetworkSource loads network files directly from the local filesystem
// with caching.
type IONetworkSource struct {
	cache   map[string][]byte
	cacheMu sync.RWMutex
	group   singleflight.Group
}

// NewIONetworkSource creates a new filesystem-based network source.
func NewIONetworkSource() *IONetworkSource {
	return &IONetworkSource{
		cache: make(map[string][]byte),
	}
}

// Discover globs the size directories below params.Root and the network
// files inside each of them. Files are returned sorted by size and path.
func (l *IONetworkSource) Discover(ctx context.Context, params loader.DiscoverParams) ([]loader.NetworkFile, error) {
	params = params.WithDefaults()

	info, err := os.Stat(params.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to read source root %s: %w", params.Root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source root %s is not a directory", params.Root)
	}

	dirs, err := filepath.Glob(filepath.Join(params.Root, params.DirPattern))
	if err != nil {
		return nil, fmt.Errorf("invalid directory pattern %q: %w", params.DirPattern, err)
	}

	files := make([]loader.NetworkFile, 0)
	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		st, err := os.Stat(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", dir, err)
		}
		if !st.IsDir() {
			continue
		}

		size, err := loader.SizeFromDir(dir)
		if err != nil {
			return nil, err
		}

		paths, err := filepath.Glob(filepath.Join(dir, params.FilePattern))
		if err != nil {
			return nil, fmt.Errorf("invalid file pattern %q: %w", params.FilePattern, err)
		}
		logger.Debug("[Loader] Discovered size directory", "dir", dir, "size", size, "files", len(paths))

		for _, p := range paths {
			files = append(files, loader.NetworkFile{
				Size:   size,
				Path:   p,
				Source: l,
			})
		}
	}

	loader.SortFiles(files)
	return files, nil
}

// GetFileText reads the file content from the filesystem. Results are cached.
func (l *IONetworkSource) GetFileText(ctx context.Context, file loader.NetworkFile) ([]byte, error) {
	key := loader.CacheKey(file)

	l.cacheMu.RLock()
	if cached, ok := l.cache[key]; ok {
		l.cacheMu.RUnlock()
		return cached, nil
	}
	l.cacheMu.RUnlock()

	result, err, _ := l.group.Do(key, func() (any, error) {
		l.cacheMu.RLock()
		if cached, ok := l.cache[key]; ok {
			l.cacheMu.RUnlock()
			return cached, nil
		}
		l.cacheMu.RUnlock()

		result, err := os.ReadFile(file.Path)
		if err != nil {
			return nil, err
		}

		l.cacheMu.Lock()
		l.cache[key] = result
		l.cacheMu.Unlock()

		return result, nil
	})
	if err != nil {
		return nil, err
	}

	return result.([]byte), nil
}
