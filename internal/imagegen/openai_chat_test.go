package imagegen

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"artjournal-backend/internal/config"
	"artjournal-backend/internal/model"
	"artjournal-backend/pkg/logger"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	path    string
	headers http.Header
	body    map[string]any
}

func chatServer(t *testing.T, status int, reply string) (*httptest.Server, *capturedRequest) {
	t.Helper()
	captured := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.path = r.URL.Path
		captured.headers = r.Header.Clone()
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &captured.body)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, captured
}

func completionJSON(content string) string {
	data, _ := json.Marshal(map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"choices": []map[string]any{
			{"index": 0, "message": map[string]any{"role": "assistant", "content": content}},
		},
	})
	return string(data)
}

func chatRequest(baseURL string) *Request {
	return &Request{
		Prompt: "a cat on a sofa",
		Size:   "1024x1024",
		Config: &model.ModelConfig{
			BaseURL:           baseURL + "/v1/",
			APIKey:            "sk-raw",
			Model:             "painter",
			Format:            model.FormatOpenAIChat,
			Seed:              -1,
			CustomPromptAdd:   ", watercolor",
			NegativePromptAdd: "blurry",
		},
	}
}

func TestOpenAIChatTextToImage(t *testing.T) {
	srv, captured := chatServer(t, http.StatusOK, completionJSON("Here you go ![img](https://cdn.ex.com/a.png)"))
	client := NewOpenAIChatClient(viper.New(), "[test]")

	payload, err := client.Generate(context.Background(), chatRequest(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, model.URLPayload("https://cdn.ex.com/a.png", StrategyMarkdown), payload)

	assert.Equal(t, "/v1/chat/completions", captured.path)
	assert.Equal(t, "sk-raw", captured.headers.Get("Authorization"))
	assert.Equal(t, "application/json", captured.headers.Get("Content-Type"))
	assert.Equal(t, "application/json", captured.headers.Get("Accept"))

	assert.Equal(t, "painter", captured.body["model"])
	assert.Equal(t, "1024x1024", captured.body["size"])
	assert.NotContains(t, captured.body, "seed")

	messages := captured.body["messages"].([]any)
	require.Len(t, messages, 2)
	system := messages[0].(map[string]any)
	assert.Equal(t, "system", system["role"])
	assert.Contains(t, system["content"], "Target image size: 1024x1024.")

	user := messages[1].(map[string]any)
	assert.Equal(t, "user", user["role"])
	assert.Equal(t,
		"Please generate an image: a cat on a sofa, watercolor\n\nNegative prompt (avoid these): blurry",
		user["content"])
}

func TestOpenAIChatImageToImage(t *testing.T) {
	srv, captured := chatServer(t, http.StatusOK, completionJSON("data:image/png;base64,iVBORw0KGgoAAAA"))
	client := NewOpenAIChatClient(viper.New(), "")

	req := chatRequest(srv.URL)
	req.Config.Seed = 1234
	req.Size = ""
	req.InputImage = "/9j/4AAQSkZJRg"
	req.Strength = 0.6

	payload, err := client.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, model.PayloadBase64, payload.Kind)
	assert.Equal(t, "iVBORw0KGgoAAAA", payload.Data)

	assert.EqualValues(t, 1234, captured.body["seed"])
	assert.NotContains(t, captured.body, "size")

	messages := captured.body["messages"].([]any)
	parts := messages[1].(map[string]any)["content"].([]any)
	require.Len(t, parts, 2)

	imagePart := parts[0].(map[string]any)
	assert.Equal(t, "image_url", imagePart["type"])
	assert.Equal(t, "data:image/jpeg;base64,/9j/4AAQSkZJRg", imagePart["image_url"].(map[string]any)["url"])

	textPart := parts[1].(map[string]any)
	assert.Equal(t, "text", textPart["type"])
	assert.True(t, strings.HasPrefix(textPart["text"].(string),
		"Please modify this image based on the following description (modification strength: 0.6): a cat on a sofa"))
}

func TestOpenAIChatFailures(t *testing.T) {
	t.Run("non 2xx", func(t *testing.T) {
		srv, _ := chatServer(t, http.StatusTooManyRequests, `{"error":{"message":"slow down, secret details"}}`)
		_, err := NewOpenAIChatClient(nil, "").Generate(context.Background(), chatRequest(srv.URL))

		var statusErr *StatusError
		require.True(t, errors.As(err, &statusErr))
		assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
		assert.ErrorIs(t, err, ErrTransport)
		assert.NotContains(t, err.Error(), "secret details")
	})

	t.Run("malformed body", func(t *testing.T) {
		srv, _ := chatServer(t, http.StatusOK, `not json`)
		_, err := NewOpenAIChatClient(nil, "").Generate(context.Background(), chatRequest(srv.URL))
		assert.ErrorIs(t, err, ErrTransport)
	})

	t.Run("empty choices", func(t *testing.T) {
		srv, _ := chatServer(t, http.StatusOK, `{"choices":[]}`)
		_, err := NewOpenAIChatClient(nil, "").Generate(context.Background(), chatRequest(srv.URL))
		assert.ErrorIs(t, err, ErrEmptyContent)
	})

	t.Run("no image in reply", func(t *testing.T) {
		srv, _ := chatServer(t, http.StatusOK, completionJSON("I cannot draw that."))
		_, err := NewOpenAIChatClient(nil, "").Generate(context.Background(), chatRequest(srv.URL))
		assert.ErrorIs(t, err, ErrNoImage)
	})

	t.Run("connection refused", func(t *testing.T) {
		srv, _ := chatServer(t, http.StatusOK, "")
		url := srv.URL
		srv.Close()

		_, err := NewOpenAIChatClient(nil, "").Generate(context.Background(), chatRequest(url))
		require.ErrorIs(t, err, ErrTransport)
		assert.LessOrEqual(t, len(err.Error()), len(ErrTransport.Error())+2+100)
	})

	t.Run("unusable config", func(t *testing.T) {
		_, err := NewOpenAIChatClient(nil, "").Generate(context.Background(), &Request{Config: &model.ModelConfig{}})
		assert.ErrorIs(t, err, ErrConfigurationMissing)
	})
}

func TestOpenAIChatVerboseLogging(t *testing.T) {
	srv, _ := chatServer(t, http.StatusOK, completionJSON("![x](https://ex.com/a.png)"))

	v := viper.New()
	v.Set(config.KeyVerboseDebug, true)

	var logs strings.Builder
	captureLogs(t, &logs)

	req := chatRequest(srv.URL)
	req.Config.APIKey = "Bearer sk-very-secret"
	req.InputImage = "iVBORw0KGgo" + strings.Repeat("A", 64)

	_, err := NewOpenAIChatClient(v, "").Generate(context.Background(), req)
	require.NoError(t, err)

	out := logs.String()
	assert.Contains(t, out, "Bearer ***")
	assert.NotContains(t, out, "sk-very-secret")
	assert.Contains(t, out, imagePlaceholder)
	assert.NotContains(t, out, req.InputImage)
}

func TestCompletionContentParts(t *testing.T) {
	srv, _ := chatServer(t, http.StatusOK, `{"choices":[{"index":0,"message":{"role":"assistant","content":[
		{"type":"text","text":"done"},
		{"type":"image_url","image_url":{"url":"https://ex.com/out.webp"}}
	]}}]}`)

	payload, err := NewOpenAIChatClient(nil, "").Generate(context.Background(), chatRequest(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, "https://ex.com/out.webp", payload.Data)
}

func captureLogs(t *testing.T, w io.Writer) {
	t.Helper()
	logger.SetOutput(w)
	t.Cleanup(func() { logger.SetOutput(os.Stdout) })
}
