// skiabuild fetch [repository]
package cmd

import (
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/qobs-build/skiabuild/internal/msg"
	"github.com/qobs-build/skiabuild/internal/source"
	"github.com/spf13/cobra"
)

var flagFetchDir string

func doFetch(cmd *cobra.Command, args []string) {
	repo := source.DefaultRepository
	if len(args) > 0 {
		repo = args[0]
	}

	dir := filepath.Join(flagFetchDir, source.CheckoutDir)
	msg.Stage("Fetching", "%s into %s", repo, filepath.ToSlash(dir))
	err := source.Fetch(dir, source.FetchOptions{
		Repository: repo,
		Progress:   &msg.IndentWriter{Indent: "    ", W: msg.Output},
	})
	if err != nil {
		msg.Fatal("%v", err)
	}

	msg.Info("run %s, %s and %s inside %s to fetch third-party sources and the vendored gn/ninja",
		color.HiCyanString("python3 tools/git-sync-deps"), color.HiCyanString("bin/fetch-gn"),
		color.HiCyanString("bin/fetch-ninja"), filepath.ToSlash(dir))
	if _, err := os.Stat(filepath.Join(dir, "BUILD.gn")); err != nil {
		msg.Warn("%s has no BUILD.gn; is %s a Skia repository?", dir, repo)
	}
}

var fetchCmd = &cobra.Command{
	Use:   "fetch [repository]",
	Short: "Clone Skia into the managed checkout used by full builds",
	Long: `Clone Skia into <dir>/skia, the checkout full (non-offline) builds use.

The repository may carry a branch and a revision:
  gh:google/skia@chrome/m126
  https://skia.googlesource.com/skia#0123abcd`,
	Args: cobra.MaximumNArgs(1),
	Run:  doFetch,
}

func init() {
	// skiabuild fetch subcommand
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().StringVarP(&flagFetchDir, "dir", "C", ".", "Working directory to place the checkout in")
}
