package imagegen

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"artjournal-backend/internal/config"
	"artjournal-backend/internal/model"

	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChatModel struct {
	reply    *schema.Message
	err      error
	received []*schema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...einoModel.Option) (*schema.Message, error) {
	f.received = input
	return f.reply, f.err
}

func (f *fakeChatModel) Stream(context.Context, []*schema.Message, ...einoModel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

func fakeEinoClient(fake *fakeChatModel) *EinoChatClient {
	c := NewQwenClient(nil, "[test]")
	c.newModel = func(context.Context, *model.ModelConfig, *http.Client) (einoModel.BaseChatModel, error) {
		return fake, nil
	}
	return c
}

func einoRequest() *Request {
	return &Request{
		Prompt: "a fox",
		Size:   "512x512",
		Config: &model.ModelConfig{BaseURL: "https://dashscope.example.com", Model: "qwen-image", Format: model.FormatQwen},
	}
}

func TestEinoChatTextToImage(t *testing.T) {
	fake := &fakeChatModel{reply: schema.AssistantMessage("![fox](https://ex.com/fox.png)", nil)}

	payload, err := fakeEinoClient(fake).Generate(context.Background(), einoRequest())
	require.NoError(t, err)
	assert.Equal(t, "https://ex.com/fox.png", payload.Data)

	require.Len(t, fake.received, 2)
	assert.Equal(t, schema.System, fake.received[0].Role)
	assert.Contains(t, fake.received[0].Content, "Target image size: 512x512.")
	assert.Equal(t, "Please generate an image: a fox", fake.received[1].Content)
}

func TestEinoChatImageToImage(t *testing.T) {
	fake := &fakeChatModel{reply: schema.AssistantMessage("data:image/webp;base64,UklGRAAAA", nil)}
	req := einoRequest()
	req.InputImage = "UklGRinput"

	payload, err := fakeEinoClient(fake).Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, model.Base64Payload("UklGRAAAA", StrategyDataURI), payload)

	user := fake.received[1]
	require.Len(t, user.MultiContent, 2)
	assert.Equal(t, schema.ChatMessagePartTypeImageURL, user.MultiContent[0].Type)
	assert.Equal(t, "data:image/webp;base64,UklGRinput", user.MultiContent[0].ImageURL.URL)
	assert.Equal(t, "Please modify this image based on the following description: a fox", user.MultiContent[1].Text)
}

func TestEinoChatFailures(t *testing.T) {
	_, err := fakeEinoClient(&fakeChatModel{err: errors.New("dial tcp: timeout")}).Generate(context.Background(), einoRequest())
	assert.ErrorIs(t, err, ErrTransport)

	_, err = fakeEinoClient(&fakeChatModel{reply: schema.AssistantMessage("", nil)}).Generate(context.Background(), einoRequest())
	assert.ErrorIs(t, err, ErrEmptyContent)

	_, err = fakeEinoClient(&fakeChatModel{reply: schema.AssistantMessage("no picture", nil)}).Generate(context.Background(), einoRequest())
	assert.ErrorIs(t, err, ErrNoImage)
}

func TestDoubaoWarnsOnceAboutProxy(t *testing.T) {
	v := viper.New()
	v.Set("proxy.enabled", true)
	v.Set("proxy.url", "http://127.0.0.1:7890")
	require.NotNil(t, config.Proxy(v))

	fake := &fakeChatModel{reply: schema.AssistantMessage("![x](https://ex.com/x.png)", nil)}
	newFake := func(context.Context, *model.ModelConfig, *http.Client) (einoModel.BaseChatModel, error) {
		return fake, nil
	}

	doubao := NewDoubaoClient(v, "[test]")
	doubao.newModel = newFake
	qwen := NewQwenClient(v, "[test]")
	qwen.newModel = newFake

	var logs strings.Builder
	captureLogs(t, &logs)

	for i := 0; i < 2; i++ {
		_, err := doubao.Generate(context.Background(), einoRequest())
		require.NoError(t, err)
		_, err = qwen.Generate(context.Background(), einoRequest())
		require.NoError(t, err)
	}

	assert.Equal(t, 1, strings.Count(logs.String(), "不支持代理"))
	assert.Contains(t, logs.String(), "(Doubao)")
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(nil, "")
	assert.Equal(t, []string{"doubao", "openai", "openai-chat", "qwen"}, r.Formats())

	c, err := r.Get("")
	require.NoError(t, err)
	assert.Equal(t, model.FormatOpenAI, c.Format())

	c, err = r.Get(" OpenAI-Chat ")
	require.NoError(t, err)
	assert.IsType(t, &OpenAIChatClient{}, c)

	_, err = r.Get("gemini")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestUserMessage(t *testing.T) {
	assert.Empty(t, UserMessage(nil))
	assert.Contains(t, UserMessage(&StatusError{Format: "openai", StatusCode: 503}), "503")
	assert.NotEqual(t, UserMessage(ErrNoImage), UserMessage(ErrTransport))
	assert.Equal(t, UserMessage(errors.New("boom")), UserMessage(errors.New("other")))
}
