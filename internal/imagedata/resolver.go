// Package imagedata normalizes image references to base64. Inline base64
// passes through untouched; links are downloaded and encoded.
package imagedata

import (
	"context"
	"errors"
	"fmt"

	"artjournal-backend/internal/model"
	"artjournal-backend/pkg/logger"
)

var ErrDownload = errors.New("image download failed")

// DownloadFunc fetches url and returns its content as base64.
type DownloadFunc func(ctx context.Context, url string) (string, error)

type Resolver struct {
	download  DownloadFunc
	logPrefix string
}

func NewResolver(download DownloadFunc, logPrefix string) *Resolver {
	return &Resolver{download: download, logPrefix: logPrefix}
}

// Resolve returns ref unchanged when it carries a base64 image signature,
// otherwise downloads it.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	return r.ResolvePayload(ctx, model.ClassifyRef(ref))
}

func (r *Resolver) ResolvePayload(ctx context.Context, p model.Payload) (string, error) {
	if p.Kind == model.PayloadBase64 {
		return p.Data, nil
	}
	if p.Data == "" {
		return "", fmt.Errorf("%w: empty url", ErrDownload)
	}

	type result struct {
		data string
		err  error
	}
	done := make(chan result, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- result{err: fmt.Errorf("%w: panic: %v", ErrDownload, rec)}
			}
		}()
		data, err := r.download(ctx, p.Data)
		done <- result{data: data, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %v", ErrDownload, ctx.Err())
	case res := <-done:
		if res.err != nil {
			logger.Warnf("%s 图片下载失败: %v", r.logPrefix, res.err)
			if errors.Is(res.err, ErrDownload) {
				return "", res.err
			}
			return "", fmt.Errorf("%w: %v", ErrDownload, res.err)
		}
		if res.data == "" {
			return "", fmt.Errorf("%w: empty body", ErrDownload)
		}
		return res.data, nil
	}
}
