package imagegen

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func TestDebugTransportRedactsShortDataURIs(t *testing.T) {
	var forwarded string
	base := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		data, _ := io.ReadAll(req.Body)
		forwarded = string(data)
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("{}"))}, nil
	})

	var logs strings.Builder
	captureLogs(t, &logs)

	body := `{"messages":[{"content":[{"type":"image_url","image_url":{"url":"data:image/png;base64,iVBORw0KGgoSHORT=="}}]}]}`
	req, err := http.NewRequest(http.MethodPost, "https://dashscope.example.com/v1/chat/completions", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer sk-secret")

	resp, err := newDebugTransport(base, true, "[test]").RoundTrip(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, body, forwarded, "request body is forwarded untouched")

	out := logs.String()
	assert.Contains(t, out, "data:image/png;base64,"+imagePlaceholder)
	assert.NotContains(t, out, "iVBORw0KGgoSHORT")
	assert.NotContains(t, out, "sk-secret")
}

func TestRedactDataURIs(t *testing.T) {
	assert.Equal(t, "a data:image/jpeg;base64,"+imagePlaceholder+" b data:image/svg+xml;base64,"+imagePlaceholder,
		redactDataURIs("a data:image/jpeg;base64,/9j/4AAQ b data:image/svg+xml;base64,PHN2Zz4="))
	assert.Equal(t, "no images here", redactDataURIs("no images here"))
}
