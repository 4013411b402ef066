package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// ErrNoCachedCopy is returned when a source has never been cached.
var ErrNoCachedCopy = errors.New("no cached element sets")

// DiskCache keeps the last downloads of each element set source so the
// catalog can be built without network access. Only downloads that parse
// into at least one element set are kept, so a bad response never replaces
// a good copy. Files are named <source key>_<unix seconds>.tle.
type DiskCache struct {
	dir    string
	keep   int
	logger *slog.Logger
}

// CachedCopy is one stored download.
type CachedCopy struct {
	Data      []byte
	FetchedAt time.Time
	Entries   int
}

// NewDiskCache stores files in dir, keeping at most keep copies per source.
func NewDiskCache(dir string, keep int, logger *slog.Logger) *DiskCache {
	if keep <= 0 {
		keep = 5
	}
	return &DiskCache{dir: dir, keep: keep, logger: logger}
}

// sourceKey names a source on disk. Different URL sets never share files.
func sourceKey(source string) string {
	h := fnv.New64a()
	h.Write([]byte(source))
	return strconv.FormatUint(h.Sum64(), 16)
}

// Save stores data downloaded from source at fetchedAt and returns the
// number of element sets it holds. Data without any usable element set is
// rejected.
func (c *DiskCache) Save(source string, data []byte, fetchedAt time.Time) (int, error) {
	entries, err := ParseTLE(bytes.NewReader(data), c.logger)
	if err != nil {
		return 0, fmt.Errorf("validating download: %w", err)
	}
	if len(entries) == 0 {
		return 0, fmt.Errorf("download from %s has no element sets", source)
	}

	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return 0, fmt.Errorf("creating cache dir: %w", err)
	}

	// Write then rename so a crash never leaves a truncated copy behind.
	name := fmt.Sprintf("%s_%d.tle", sourceKey(source), fetchedAt.Unix())
	tmp, err := os.CreateTemp(c.dir, ".partial-*")
	if err != nil {
		return 0, fmt.Errorf("creating cache file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("writing cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("writing cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(c.dir, name)); err != nil {
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("storing cache file: %w", err)
	}

	return len(entries), c.prune(source)
}

// Latest returns the newest stored copy of source.
func (c *DiskCache) Latest(source string) (CachedCopy, error) {
	files, err := c.copies(source)
	if err != nil {
		return CachedCopy{}, err
	}
	if len(files) == 0 {
		return CachedCopy{}, fmt.Errorf("%w for %s in %s", ErrNoCachedCopy, source, c.dir)
	}

	newest := files[len(files)-1]
	data, err := os.ReadFile(filepath.Join(c.dir, newest.name))
	if err != nil {
		return CachedCopy{}, fmt.Errorf("reading cache file: %w", err)
	}
	entries, err := ParseTLE(bytes.NewReader(data), c.logger)
	if err != nil {
		return CachedCopy{}, fmt.Errorf("parsing cache file %s: %w", newest.name, err)
	}
	return CachedCopy{Data: data, FetchedAt: newest.fetchedAt, Entries: len(entries)}, nil
}

type cachedFile struct {
	name      string
	fetchedAt time.Time
}

// copies lists the stored copies of source, oldest first.
func (c *DiskCache) copies(source string) ([]cachedFile, error) {
	dirEntries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing cache dir: %w", err)
	}

	prefix := sourceKey(source) + "_"
	var files []cachedFile
	for _, e := range dirEntries {
		if e.IsDir() {
			continue
		}
		stamp, ok := strings.CutPrefix(e.Name(), prefix)
		if !ok {
			continue
		}
		stamp, ok = strings.CutSuffix(stamp, ".tle")
		if !ok {
			continue
		}
		unix, err := strconv.ParseInt(stamp, 10, 64)
		if err != nil {
			continue
		}
		files = append(files, cachedFile{name: e.Name(), fetchedAt: time.Unix(unix, 0).UTC()})
	}

	slices.SortFunc(files, func(a, b cachedFile) int { return a.fetchedAt.Compare(b.fetchedAt) })
	return files, nil
}

// prune removes the oldest copies of source beyond keep.
func (c *DiskCache) prune(source string) error {
	files, err := c.copies(source)
	if err != nil {
		return err
	}
	if len(files) <= c.keep {
		return nil
	}
	for _, f := range files[:len(files)-c.keep] {
		if err := os.Remove(filepath.Join(c.dir, f.name)); err != nil {
			return fmt.Errorf("pruning cache file %s: %w", f.name, err)
		}
	}
	return nil
}
