package source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing"
)

// DefaultRepository is used by `skiabuild fetch` when no repository is given.
const DefaultRepository = "https://github.com/google/skia.git"

var repoShortcuts = map[string]string{
	"gh:": "https://github.com/",
	"gl:": "https://gitlab.com/",
	"sr:": "https://sr.ht/",
	"cb:": "https://codeberg.org/",
}

var (
	errEmptyRepository = errors.New("empty repository string")
	errCheckoutExists  = errors.New("checkout directory already exists and is not empty")
)

type gitURL struct {
	cleanURL    string
	branch      string
	commitOrTag string
}

// parseGitURL splits the branch and revision suffixes off a repository string:
//
//	someone/skia@chrome/m126#0123abcd
//	someone/skia@main
//	someone/skia#0123abcd
func parseGitURL(rawURL string) (res gitURL) {
	for shortcut, prefix := range repoShortcuts {
		if strings.HasPrefix(rawURL, shortcut) {
			rawURL = prefix + rawURL[len(shortcut):]
			break
		}
	}

	parts := strings.SplitN(rawURL, "#", 2)
	baseURL := parts[0]
	if len(parts) == 2 {
		res.commitOrTag = parts[1]
	}

	// only an @ inside the path selects a branch; user@host must survive
	offset := 0
	if i := strings.Index(baseURL, "://"); i >= 0 {
		offset = i + 3
	}
	slash := strings.Index(baseURL[offset:], "/")
	at := strings.LastIndex(baseURL, "@")
	if slash >= 0 && at > offset+slash {
		res.cleanURL = baseURL[:at]
		res.branch = baseURL[at+1:]
	} else {
		res.cleanURL = baseURL
	}

	if !strings.HasSuffix(res.cleanURL, ".git") {
		res.cleanURL += ".git"
	}

	return
}

// FetchOptions configures Fetch.
type FetchOptions struct {
	Repository string
	Progress   io.Writer
}

// Fetch clones Skia into dir, the managed checkout full builds expect.
// Third-party dependencies (tools/git-sync-deps) and the vendored gn/ninja
// (bin/fetch-gn, bin/fetch-ninja) are left to Skia's own scripts.
func Fetch(dir string, opts FetchOptions) error {
	repo := opts.Repository
	if repo == "" {
		repo = DefaultRepository
	}
	if strings.TrimSpace(repo) == "" {
		return errEmptyRepository
	}

	if entries, err := os.ReadDir(dir); err == nil && len(entries) > 0 {
		return fmt.Errorf("%s: %w", dir, errCheckoutExists)
	}

	parsedURL := parseGitURL(repo)

	cloneOptions := &git.CloneOptions{
		URL:      parsedURL.cleanURL,
		Progress: opts.Progress,
	}

	if parsedURL.commitOrTag == "" {
		cloneOptions.Depth = 1 // we can do a shallow clone of the latest commit
	}

	if parsedURL.branch != "" {
		cloneOptions.ReferenceName = plumbing.NewBranchReferenceName(parsedURL.branch)
		cloneOptions.SingleBranch = true
	}

	r, err := git.PlainClone(dir, cloneOptions)
	if err != nil {
		return fmt.Errorf("cloning %s: %w", parsedURL.cleanURL, err)
	}

	if parsedURL.commitOrTag != "" {
		w, err := r.Worktree()
		if err != nil {
			return fmt.Errorf("could not get worktree: %w", err)
		}

		revision := parsedURL.commitOrTag
		hash, err := r.ResolveRevision(plumbing.Revision(revision))
		if err != nil {
			return fmt.Errorf("could not resolve revision `%s`: %w", revision, err)
		}

		err = w.Checkout(&git.CheckoutOptions{
			Hash:  *hash,
			Force: true,
		})
		if err != nil {
			return fmt.Errorf("failed to checkout `%s`: %w", revision, err)
		}
	}

	return nil
}
