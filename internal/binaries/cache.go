package binaries

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"

	"github.com/google/uuid"
)

const CacheIndexFilename = "skiabuild_binaries.json"

var keyRegex = regexp.MustCompile(`^[0-9a-f]{16}$`)

// CheckKey rejects anything that is not a configuration key as produced by
// BuildConfiguration.Key.
func CheckKey(key string) error {
	if !keyRegex.MatchString(key) {
		return fmt.Errorf("invalid binaries key %q: expected 16 lowercase hex characters", key)
	}
	return nil
}

// Cache keeps downloaded prebuilt archives, keyed by configuration key.
type Cache struct {
	// on windows: %LocalAppData%/skiabuild/binaries
	// on linux: ~/.cache/skiabuild/binaries
	basePath string
	// configuration key -> archive file name in basePath
	Archives map[string]string
}

// DefaultCacheDir returns the per-user cache location.
func DefaultCacheDir() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, "skiabuild", "binaries"), nil
}

// OpenCache loads the cache index in basePath, creating an empty cache when
// there is none yet.
func OpenCache(basePath string) (*Cache, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, err
	}
	cache := &Cache{basePath: basePath, Archives: make(map[string]string)}

	f, err := os.Open(filepath.Join(basePath, CacheIndexFilename))
	if errors.Is(err, os.ErrNotExist) {
		return cache, nil
	} else if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := json.NewDecoder(bufio.NewReader(f)).Decode(&cache.Archives); err != nil {
		return nil, fmt.Errorf("%s: %w", CacheIndexFilename, err)
	}
	return cache, nil
}

func (c *Cache) Save() error {
	path := filepath.Join(c.basePath, CacheIndexFilename)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	bufw := bufio.NewWriter(f)
	enc := json.NewEncoder(bufw)
	enc.SetIndent("", "  ")
	if err := enc.Encode(c.Archives); err != nil {
		return err
	}
	return bufw.Flush()
}

// Path returns the cached archive for key if it is still on disk.
func (c *Cache) Path(key string) (string, bool) {
	name, ok := c.Archives[key]
	if !ok {
		return "", false
	}
	path := filepath.Join(c.basePath, name)
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}

// Store copies an archive into the cache under key and records it.
func (c *Cache) Store(key string, r io.Reader) (string, error) {
	if err := CheckKey(key); err != nil {
		return "", err
	}
	name := ArchiveName(key)
	tmp := filepath.Join(c.basePath, "."+uuid.NewString()+".partial")

	f, err := os.Create(tmp)
	if err != nil {
		return "", err
	}
	_, err = io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return "", err
	}

	path := filepath.Join(c.basePath, name)
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", err
	}

	c.Archives[key] = name
	return path, c.Save()
}

// Remove forgets key and deletes its archive.
func (c *Cache) Remove(key string) bool {
	name, ok := c.Archives[key]
	if !ok {
		return false
	}
	delete(c.Archives, key)
	os.Remove(filepath.Join(c.basePath, name))
	return true
}

// Keys returns the cached configuration keys in sorted order.
func (c *Cache) Keys() []string {
	keys := make([]string, 0, len(c.Archives))
	for k := range c.Archives {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func (c *Cache) Dir() string { return c.basePath }
