package binaries

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/qobs-build/skiabuild/internal/msg"
)

// ArchiveName is the file name of the prebuilt archive for a configuration key.
func ArchiveName(key string) string {
	return "skia-binaries-" + key + ".tar.gz"
}

// ExpandURL substitutes {key} in a SKIA_BINARIES_URL template.
func ExpandURL(template, key string) string {
	return strings.ReplaceAll(template, "{key}", key)
}

// Fetcher downloads prebuilt archives and unpacks them into an output
// directory.
type Fetcher struct {
	Client   *http.Client
	Cache    *Cache    // optional
	Progress io.Writer // progress bar output, msg.Output when nil
	Logger   hclog.Logger
}

// Fetch makes the prebuilt binaries for key available in outDir, using the
// cache when it already holds them.
func (f *Fetcher) Fetch(ctx context.Context, url, key, outDir string) error {
	logger := f.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	if f.Cache != nil {
		if path, ok := f.Cache.Path(key); ok {
			logger.Debug("using cached prebuilt binaries", "key", key, "archive", path)
			if err := extractFile(path, outDir); err != nil {
				f.Cache.Remove(key)
				if err := f.Cache.Save(); err != nil {
					logger.Warn("failed to update binaries cache", "error", err)
				}
				return err
			}
			return nil
		}
	}

	body, size, err := f.download(ctx, url)
	if err != nil {
		return err
	}
	defer body.Close()

	msg.Stage("Downloading", "%s", url)
	bar := msg.NewProgressBar("", size, 13, f.Progress)
	reader := io.TeeReader(body, bar)

	if f.Cache == nil {
		err = Extract(reader, outDir)
		bar.Finish()
		return err
	}

	path, err := f.Cache.Store(key, reader)
	bar.Finish()
	if err != nil {
		return fmt.Errorf("caching %s: %w", url, err)
	}
	return extractFile(path, outDir)
}

func (f *Fetcher) download(ctx context.Context, url string) (io.ReadCloser, int64, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, 0, fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	return resp.Body, resp.ContentLength, nil
}

func extractFile(path, outDir string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return Extract(f, outDir)
}

var errUnsafePath = errors.New("archive entry escapes the output directory")

// Extract unpacks a .tar.gz stream into outDir. Entries are staged in a
// sibling directory first so a broken archive leaves outDir untouched.
func Extract(r io.Reader, outDir string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("reading archive: %w", err)
	}
	defer gz.Close()

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	staging := filepath.Join(outDir, ".prebuilt-"+uuid.NewString())
	if err := os.Mkdir(staging, 0o755); err != nil {
		return err
	}
	defer os.RemoveAll(staging)

	var files []string
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading archive: %w", err)
		}

		name := filepath.Clean(filepath.FromSlash(hdr.Name))
		if filepath.IsAbs(name) || name == ".." || strings.HasPrefix(name, ".."+string(filepath.Separator)) {
			return fmt.Errorf("%s: %w", hdr.Name, errUnsafePath)
		}
		dest := filepath.Join(staging, name)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeEntry(dest, tr, hdr.FileInfo().Mode().Perm()); err != nil {
				return err
			}
			files = append(files, name)
		default:
			// links and devices have no place in a binaries archive
			continue
		}
	}

	for _, name := range files {
		dest := filepath.Join(outDir, name)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		if err := os.Rename(filepath.Join(staging, name), dest); err != nil {
			return err
		}
	}
	return nil
}

func writeEntry(dest string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm|0o600)
	if err != nil {
		return err
	}
	_, err = io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

// Pack writes the named files of outDir into a .tar.gz stream.
func Pack(w io.Writer, outDir string, files []string) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	for _, name := range files {
		if err := packFile(tw, outDir, name); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("closing tar writer: %w", err)
	}
	return gz.Close()
}

func packFile(tw *tar.Writer, outDir, name string) error {
	path := filepath.Join(outDir, name)
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(stat, "")
	if err != nil {
		return err
	}
	hdr.Name = filepath.ToSlash(name)
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("writing tar header: %w", err)
	}
	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("writing tar data: %w", err)
	}
	return nil
}
