package imagegen

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"artjournal-backend/internal/config"
	"artjournal-backend/internal/model"
	"artjournal-backend/internal/utils"
	"artjournal-backend/pkg/logger"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/qwen"
	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// chatModelFactory 按模型配置创建 eino 聊天模型；httpClient 已带代理和调试传输层
type chatModelFactory func(ctx context.Context, cfg *model.ModelConfig, httpClient *http.Client) (einoModel.BaseChatModel, error)

// EinoChatClient drives a chat model through eino and runs the reply through
// the extraction pipeline, like OpenAIChatClient does for raw HTTP.
type EinoChatClient struct {
	format    string
	settings  config.Getter
	newModel  chatModelFactory
	logPrefix string

	// ignoresProxy 为 true 时底层 SDK 不走 httpClient，代理配置无效
	ignoresProxy bool
	proxyWarning sync.Once
}

func NewQwenClient(settings config.Getter, logPrefix string) *EinoChatClient {
	return &EinoChatClient{
		format:    model.FormatQwen,
		settings:  settings,
		newModel:  newQwenModel,
		logPrefix: logPrefix + " (Qwen)",
	}
}

func NewDoubaoClient(settings config.Getter, logPrefix string) *EinoChatClient {
	return &EinoChatClient{
		format:    model.FormatDoubao,
		settings:  settings,
		newModel:  newDoubaoModel,
		logPrefix: logPrefix + " (Doubao)",

		ignoresProxy: true,
	}
}

func (c *EinoChatClient) Format() string {
	return c.format
}

func (c *EinoChatClient) Generate(ctx context.Context, req *Request) (model.Payload, error) {
	if err := validate(req); err != nil {
		return model.Payload{}, err
	}
	cfg := req.Config

	proxy := config.Proxy(c.settings)
	if proxy != nil && c.ignoresProxy {
		c.proxyWarning.Do(func() {
			logger.Warnf("%s 已配置代理，但该接口格式不支持代理，请求将直连", c.logPrefix)
		})
	}
	httpClient := utils.NewHTTPClient(config.RequestTimeout(proxy), proxy)
	httpClient.Transport = newDebugTransport(httpClient.Transport, config.VerboseDebug(c.settings), c.logPrefix)
	defer httpClient.CloseIdleConnections()

	chatModel, err := c.newModel(ctx, cfg, httpClient)
	if err != nil {
		logger.Errorf("%s 创建模型失败: %v", c.logPrefix, err)
		return model.Payload{}, fmt.Errorf("%w: %s", ErrTransport, utils.Truncate(err.Error(), 100))
	}

	logger.Infof("%s 发起生图请求: %s, Prompt: %s...", c.logPrefix, cfg.Model, utils.Truncate(FullPrompt(req), 30))

	reply, err := chatModel.Generate(ctx, buildEinoMessages(req))
	if err != nil {
		logger.Errorf("%s 请求异常: %v", c.logPrefix, err)
		return model.Payload{}, fmt.Errorf("%w: %s", ErrTransport, utils.Truncate(err.Error(), 100))
	}
	if reply == nil {
		return model.Payload{}, ErrEmptyContent
	}

	content := einoContent(reply)
	if content == "" {
		logger.Errorf("%s 响应中无内容", c.logPrefix)
		return model.Payload{}, ErrEmptyContent
	}

	payload, err := Extract(content)
	if err != nil {
		logger.Errorf("%s 无法从响应中提取图片。内容预览: %s...", c.logPrefix,
			utils.Truncate(CleanLogContent(content), 200))
		return model.Payload{}, err
	}
	if payload.Strategy == StrategyBareURL {
		logger.Warnf("%s 仅提取到候选URL，可能不是图片: %s", c.logPrefix, utils.Truncate(payload.Data, 70))
	}
	return payload, nil
}

func buildEinoMessages(req *Request) []*schema.Message {
	fullPrompt := FullPrompt(req)
	messages := []*schema.Message{schema.SystemMessage(systemInstruction(req.Size))}

	if req.InputImage == "" {
		return append(messages, schema.UserMessage(textToImageInstruction(fullPrompt)))
	}
	return append(messages, &schema.Message{
		Role: schema.User,
		MultiContent: []schema.ChatMessagePart{
			{
				Type:     schema.ChatMessagePartTypeImageURL,
				ImageURL: &schema.ChatMessageImageURL{URL: model.DataURI(req.InputImage)},
			},
			{
				Type: schema.ChatMessagePartTypeText,
				Text: imageToImageInstruction(fullPrompt, req.Strength),
			},
		},
	})
}

func einoContent(msg *schema.Message) string {
	if msg.Content != "" || len(msg.MultiContent) == 0 {
		return msg.Content
	}
	var sb strings.Builder
	for _, part := range msg.MultiContent {
		switch {
		case part.Type == schema.ChatMessagePartTypeText:
			sb.WriteString(part.Text)
		case part.ImageURL != nil:
			sb.WriteString(part.ImageURL.URL)
		}
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String())
}

func newQwenModel(ctx context.Context, cfg *model.ModelConfig, httpClient *http.Client) (einoModel.BaseChatModel, error) {
	return qwen.NewChatModel(ctx, &qwen.ChatModelConfig{
		BaseURL:    cfg.BaseURL,
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		Timeout:    httpClient.Timeout,
		HTTPClient: httpClient,
	})
}

// newDoubaoModel 使用方舟 SDK 自带的连接，httpClient 中的代理设置不生效
func newDoubaoModel(ctx context.Context, cfg *model.ModelConfig, _ *http.Client) (einoModel.BaseChatModel, error) {
	return ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		CustomHeader: map[string]string{
			"X-Ark-Thinking-Mode": "disable",
		},
	})
}
