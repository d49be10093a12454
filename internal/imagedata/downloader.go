package imagedata

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"artjournal-backend/internal/config"
	"artjournal-backend/internal/utils"

	cache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

const maxImageBytes = 20 << 20

// Downloader 下载远程图片并编码为 base64。同一 URL 的并发请求只下载一次，结果短期缓存
type Downloader struct {
	client  *http.Client
	timeout time.Duration
	group   singleflight.Group
	cache   *cache.Cache
}

func NewDownloader(timeout time.Duration, proxy *config.ProxyConfig, cacheTTL time.Duration) *Downloader {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &Downloader{
		client:  utils.NewHTTPClient(timeout, proxy),
		timeout: timeout,
		cache:   cache.New(cacheTTL, 2*cacheTTL),
	}
}

// Download satisfies DownloadFunc. The shared fetch is detached from the
// caller that started it; each caller only stops waiting on its own ctx.
func (d *Downloader) Download(ctx context.Context, url string) (string, error) {
	if cached, ok := d.cache.Get(url); ok {
		return cached.(string), nil
	}

	ch := d.group.DoChan(url, func() (any, error) {
		fetchCtx, cancel := d.fetchContext(ctx)
		defer cancel()

		data, err := d.fetch(fetchCtx, url)
		if err != nil {
			return "", err
		}
		d.cache.SetDefault(url, data)
		return data, nil
	})

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %w", ErrDownload, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (d *Downloader) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if d.timeout <= 0 {
		return context.WithCancel(detached)
	}
	return context.WithTimeout(detached, d.timeout)
}

func (d *Downloader) fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownload, err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrDownload, utils.Truncate(err.Error(), 100))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: status %d", ErrDownload, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownload, err)
	}
	if len(body) > maxImageBytes {
		return "", fmt.Errorf("%w: image larger than %d bytes", ErrDownload, maxImageBytes)
	}

	if ct := http.DetectContentType(body); !strings.HasPrefix(ct, "image/") {
		return "", fmt.Errorf("%w: not an image (%s)", ErrDownload, ct)
	}

	return base64.StdEncoding.EncodeToString(body), nil
}
