package loader

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultDirPattern  = "size_*"
	DefaultFilePattern = "*.network"
)

var ErrBadSizeDir = errors.New("size directory name has no integer size")

// NetworkFile is a candidate network file discovered in a source. Size is
// the size class taken from the name of the directory holding the file.
//
// The file content is retrieved via the associated NetworkSource.
type NetworkFile struct {
	Size   int
	Path   string
	Source NetworkSource
}

// Record is the raw content of one network file, ready to be parsed.
type Record struct {
	Size      int
	SourceRef string
	Text      []byte
}

// DiscoverParams selects the network files below Root. DirPattern matches
// the size directories and FilePattern the files inside them, both with
// path.Match syntax. Empty patterns fall back to the defaults.
type DiscoverParams struct {
	Root        string
	DirPattern  string
	FilePattern string
}

// WithDefaults returns a copy of p with empty patterns replaced.
func (p DiscoverParams) WithDefaults() DiscoverParams {
	if p.DirPattern == "" {
		p.DirPattern = DefaultDirPattern
	}
	if p.FilePattern == "" {
		p.FilePattern = DefaultFilePattern
	}
	return p
}

// NetworkSource defines where network files live. Implementations may read
// from disk, object storage, or other sources.
type NetworkSource interface {
	Discover(ctx context.Context, params DiscoverParams) ([]NetworkFile, error)
	GetFileText(ctx context.Context, file NetworkFile) ([]byte, error)
}

// GetText retrieves the raw content of the file using its Source.
func (f *NetworkFile) GetText(ctx context.Context) ([]byte, error) {
	if f.Source == nil {
		return nil, fmt.Errorf("network file %s has no source", f.Path)
	}
	return f.Source.GetFileText(ctx, *f)
}

// CacheKey generates a cache key for a NetworkFile based on its size and path.
func CacheKey(file NetworkFile) string {
	return strconv.Itoa(file.Size) + ":" + file.Path
}

// SizeFromDir extracts the size class from a directory name such as
// "size_12". The size is the second "_"-separated field of the base name.
func SizeFromDir(dir string) (int, error) {
	base := path.Base(strings.ReplaceAll(strings.TrimSuffix(dir, "/"), "\\", "/"))
	parts := strings.Split(base, "_")
	if len(parts) < 2 {
		return 0, fmt.Errorf("%w: %s", ErrBadSizeDir, dir)
	}
	size, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrBadSizeDir, dir)
	}
	return size, nil
}

// SortFiles orders files by size class and then by path.
func SortFiles(files []NetworkFile) {
	sort.SliceStable(files, func(i, j int) bool {
		if files[i].Size != files[j].Size {
			return files[i].Size < files[j].Size
		}
		return files[i].Path < files[j].Path
	})
}

// LoadRecords reads all files concurrently, at most parallel at a time, and
// returns their records in the order of files. The first read error aborts
// the load.
func LoadRecords(ctx context.Context, files []NetworkFile, parallel int) ([]Record, error) {
	records := make([]Record, len(files))

	eg, gCtx := errgroup.WithContext(ctx)
	if parallel > 0 {
		eg.SetLimit(parallel)
	}

	for i, file := range files {
		eg.Go(func() error {
			text, err := file.GetText(gCtx)
			if err != nil {
				return fmt.Errorf("failed to read network file %s: %w", file.Path, err)
			}
			records[i] = Record{
				Size:      file.Size,
				SourceRef: file.Path,
				Text:      text,
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}
