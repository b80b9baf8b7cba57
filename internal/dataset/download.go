package dataset

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-cleanhttp"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Mirrors for the dataset archives.
var baseURLs = map[Kind]string{
	MNIST:        "https://ossci-datasets.s3.amazonaws.com/mnist/",
	FashionMNIST: "http://fashion-mnist.s3-website.eu-central-1.amazonaws.com/",
}

// maxArchiveSize caps a single download.
const maxArchiveSize = 128 << 20

// Downloader fetches dataset archives over HTTP.
type Downloader struct {
	client *http.Client
	logger *zap.SugaredLogger

	// BaseURL overrides the mirror for every kind when set.
	BaseURL string
}

// NewDownloader returns a Downloader using a pooled cleanhttp client.
func NewDownloader(logger *zap.SugaredLogger) *Downloader {
	return &Downloader{
		client: cleanhttp.DefaultPooledClient(),
		logger: logger,
	}
}

// Download fetches the four archives of kind into dir with a default
// Downloader.
func Download(ctx context.Context, dir string, kind Kind, logger *zap.SugaredLogger) error {
	return NewDownloader(logger).Download(ctx, dir, kind)
}

// Download fetches every archive of kind into dir concurrently. Files that
// already exist are skipped. A failed download leaves no partial file.
// Nothing is retried.
func (d *Downloader) Download(ctx context.Context, dir string, kind Kind) error {
	base := d.BaseURL
	if base == "" {
		var ok bool
		if base, ok = baseURLs[kind]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
		}
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, name := range kind.AllFiles() {
		path := filepath.Join(dir, name)
		if _, err := resolve(dir, name); err == nil {
			d.logger.Debugw("dataset file present, skipping", "file", path)
			continue
		}
		g.Go(func() error {
			n, err := d.fetch(ctx, base+name, path)
			if err != nil {
				return fmt.Errorf("download %s: %w", name, err)
			}
			d.logger.Infow("downloaded", "file", path, "size", humanize.Bytes(uint64(n)))
			return nil
		})
	}
	return g.Wait()
}

func (d *Downloader) fetch(ctx context.Context, url, path string) (n int64, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	//nolint:bodyclose // closed by AppendInvoke
	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer multierr.AppendInvoke(&err, multierr.Close(resp.Body))

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("invalid status code %d", resp.StatusCode)
	}
	if resp.ContentLength > maxArchiveSize {
		return 0, fmt.Errorf("archive too large: %s", humanize.Bytes(uint64(resp.ContentLength)))
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".part-*")
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	n, err = io.Copy(tmp, io.LimitReader(resp.Body, maxArchiveSize+1))
	if err != nil {
		return 0, err
	}
	if n > maxArchiveSize {
		return 0, fmt.Errorf("archive exceeds %s", humanize.Bytes(maxArchiveSize))
	}
	if err = tmp.Close(); err != nil {
		return 0, err
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return 0, err
	}
	return n, nil
}
