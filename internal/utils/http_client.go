package utils

import (
	"crypto/tls"
	"net/http"
	"net/url"
	"strings"
	"time"

	"artjournal-backend/internal/config"
)

// NewHTTPClient 创建独立的 HTTP 客户端。代理只作用于该客户端自身的 Transport，不修改全局网络设置。
func NewHTTPClient(timeout time.Duration, proxy *config.ProxyConfig) *http.Client {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: false,
		},
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	if proxy != nil {
		transport.Proxy = proxyFunc(proxy)
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

func proxyFunc(p *config.ProxyConfig) func(*http.Request) (*url.URL, error) {
	return func(req *http.Request) (*url.URL, error) {
		raw := p.HTTP
		if req.URL.Scheme == "https" && p.HTTPS != "" {
			raw = p.HTTPS
		}
		if raw == "" {
			return nil, nil
		}
		return url.Parse(raw)
	}
}

// Truncate 截断到最多 n 个字节，用于日志与错误摘要；被截断的多字节字符会被丢弃
func Truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n], "")
}
