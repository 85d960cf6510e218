// skiabuild cache
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/qobs-build/skiabuild/internal/binaries"
	"github.com/qobs-build/skiabuild/internal/msg"
	"github.com/spf13/cobra"
)

// openCache loads the prebuilt binaries cache or fails
func openCache() *binaries.Cache {
	dir, err := binaries.DefaultCacheDir()
	if err != nil {
		msg.Fatal("could not locate the user cache directory: %v", err)
	}
	cache, err := binaries.OpenCache(dir)
	if err != nil {
		msg.Fatal("failed to open binaries cache: %v", err)
	}
	return cache
}

func doCacheList() {
	cache := openCache()
	keys := cache.Keys()
	for i, key := range keys {
		path, ok := cache.Path(key)
		if !ok {
			fmt.Printf("%d. %s %s\n", i+1, key, color.HiRedString("(missing)"))
			continue
		}
		size := int64(0)
		if fi, err := os.Stat(path); err == nil {
			size = fi.Size()
		}
		fmt.Printf("%d. %s -> %s (%.1f MiB)\n", i+1, key, filepath.ToSlash(path), float64(size)/(1<<20))
	}
	if len(keys) == 0 {
		msg.Info("no cached binaries in %s", filepath.ToSlash(cache.Dir()))
	}
}

func doCacheAdd(key, archive string) {
	if err := binaries.CheckKey(key); err != nil {
		msg.Fatal("%v", err)
	}
	cache := openCache()
	if _, ok := cache.Path(key); ok {
		msg.Warn("overwriting cached binaries for %s", key)
	}

	f, err := os.Open(archive)
	if err != nil {
		msg.Fatal("%v", err)
	}
	defer f.Close()

	path, err := cache.Store(key, f)
	if err != nil {
		msg.Fatal("failed to store %s: %v", archive, err)
	}
	msg.Info("cached %s -> %s", key, filepath.ToSlash(path))
}

func doCacheRemove(keys []string) {
	cache := openCache()
	for _, key := range keys {
		if !cache.Remove(key) {
			msg.Warn("no cached binaries for %s", key)
		} else {
			msg.Info("removed %s", key)
		}
	}
	if err := cache.Save(); err != nil {
		msg.Fatal("failed to save cache index: %v", err)
	}
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached prebuilt binaries",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		doCacheList()
	},
}

var cacheAddCmd = &cobra.Command{
	Use:   "add <key> <archive>",
	Short: "Add an archive made by pack to the cache",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		doCacheAdd(args[0], args[1])
	},
}

var cacheRemoveCmd = &cobra.Command{
	Use:   "remove <key>...",
	Short: "Remove cached prebuilt binaries",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		doCacheRemove(args)
	},
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the prebuilt binaries cache",
}

func init() {
	// skiabuild cache subcommand
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheAddCmd)
	cacheCmd.AddCommand(cacheRemoveCmd)
	rootCmd.AddCommand(cacheCmd)
}
