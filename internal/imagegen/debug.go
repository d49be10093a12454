package imagegen

import (
	"bytes"
	"io"
	"net/http"
	"regexp"
	"strings"

	"artjournal-backend/internal/utils"
	"artjournal-backend/pkg/logger"
)

const (
	imagePlaceholder   = "[BASE64_DATA...]"
	maxLoggedBody      = 500
	maxLoggedErrorBody = 300
)

var dataURIPayload = regexp.MustCompile(`(data:image/[a-zA-Z+.-]+;base64,)[A-Za-z0-9+/=]+`)

// redactDataURIs replaces every inline image payload, whatever its length.
func redactDataURIs(body string) string {
	return dataURIPayload.ReplaceAllString(body, "${1}"+imagePlaceholder)
}

var sensitiveHeaders = []string{"authorization", "x-api-key", "x-auth-token", "cookie"}

func isSensitiveHeader(name string) bool {
	for _, sensitive := range sensitiveHeaders {
		if strings.EqualFold(name, sensitive) {
			return true
		}
	}
	return false
}

// redactAuthorization keeps the scheme of a bearer token and hides the rest.
func redactAuthorization(value string) string {
	if strings.HasPrefix(value, "Bearer ") {
		return "Bearer ***"
	}
	return "***"
}

func safeHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		value := strings.Join(values, ", ")
		if isSensitiveHeader(name) {
			value = redactAuthorization(value)
		}
		out[name] = value
	}
	return out
}

// debugTransport 在详细调试模式下记录请求，请求头脱敏，请求体中的长 base64 折叠为占位符
type debugTransport struct {
	base    http.RoundTripper
	enabled bool
	prefix  string
}

func newDebugTransport(base http.RoundTripper, enabled bool, prefix string) *debugTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &debugTransport{base: base, enabled: enabled, prefix: prefix}
}

func (t *debugTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.enabled && req.Method == http.MethodPost {
		t.logRequest(req)
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil && t.enabled {
		logger.Errorf("%s 详细调试 - 请求失败: %v", t.prefix, err)
	}
	return resp, err
}

func (t *debugTransport) logRequest(req *http.Request) {
	logger.Infof("%s 详细调试 - 请求端点: %s", t.prefix, req.URL.String())
	logger.Infof("%s 详细调试 - 请求头: %v", t.prefix, safeHeaders(req.Header))

	if req.Body == nil {
		return
	}
	bodyBytes, err := io.ReadAll(req.Body)
	if err != nil {
		logger.Errorf("%s 详细调试 - 读取请求体失败: %v", t.prefix, err)
		return
	}
	// 恢复请求体，以免影响实际请求
	req.Body = io.NopCloser(bytes.NewReader(bodyBytes))

	logger.Infof("%s 详细调试 - 请求体(%d bytes): %s", t.prefix, len(bodyBytes),
		utils.Truncate(CleanLogContent(redactDataURIs(string(bodyBytes))), maxLoggedBody*4))
}
