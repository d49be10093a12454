package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"artjournal-backend/internal/config"
	"artjournal-backend/internal/model"
	"artjournal-backend/internal/utils"
	"artjournal-backend/pkg/logger"

	openai "github.com/sashabaranov/go-openai"
)

// chatCompletionPayload 是 /chat/completions 请求体。该格式没有结构化的负面提示词字段，
// 负面提示词以自然语言追加在用户指令中。
type chatCompletionPayload struct {
	Model    string                         `json:"model"`
	Messages []openai.ChatCompletionMessage `json:"messages"`
	Seed     *int64                         `json:"seed,omitempty"`
	Size     string                         `json:"size,omitempty"`
}

// OpenAIChatClient generates images through a chat model behind an
// OpenAI-compatible /chat/completions endpoint and extracts the image from
// the assistant's text reply.
type OpenAIChatClient struct {
	settings  config.Getter
	logPrefix string
}

func NewOpenAIChatClient(settings config.Getter, logPrefix string) *OpenAIChatClient {
	return &OpenAIChatClient{
		settings:  settings,
		logPrefix: logPrefix + " (OpenAI-Chat)",
	}
}

func (c *OpenAIChatClient) Format() string {
	return model.FormatOpenAIChat
}

func (c *OpenAIChatClient) buildPayload(req *Request) *chatCompletionPayload {
	cfg := req.Config
	fullPrompt := FullPrompt(req)

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemInstruction(req.Size)},
	}

	if req.InputImage != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{
					Type:     openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{URL: model.DataURI(req.InputImage)},
				},
				{
					Type: openai.ChatMessagePartTypeText,
					Text: imageToImageInstruction(fullPrompt, req.Strength),
				},
			},
		})
	} else {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: textToImageInstruction(fullPrompt),
		})
	}

	payload := &chatCompletionPayload{
		Model:    cfg.Model,
		Messages: messages,
		Size:     req.Size,
	}
	if cfg.Seed != 0 && cfg.Seed != -1 {
		seed := cfg.Seed
		payload.Seed = &seed
	}
	return payload
}

func (c *OpenAIChatClient) Generate(ctx context.Context, req *Request) (model.Payload, error) {
	if err := validate(req); err != nil {
		return model.Payload{}, err
	}
	cfg := req.Config
	endpoint := strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions"

	payload := c.buildPayload(req)
	data, err := json.Marshal(payload)
	if err != nil {
		return model.Payload{}, fmt.Errorf("%w: encode request: %v", ErrTransport, err)
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers.Set("Accept", "application/json")
	// 原样发送，不假定 Bearer 前缀
	headers.Set("Authorization", cfg.APIKey)

	verbose := config.VerboseDebug(c.settings)
	if verbose {
		c.logRequest(endpoint, headers, payload)
	}

	logger.Infof("%s 发起 chat/completions 请求: %s, Prompt: %s... To: %s",
		c.logPrefix, cfg.Model, utils.Truncate(FullPrompt(req), 30), endpoint)

	proxy := config.Proxy(c.settings)
	httpClient := utils.NewHTTPClient(config.RequestTimeout(proxy), proxy)
	defer httpClient.CloseIdleConnections()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return model.Payload{}, c.transportError(err)
	}
	httpReq.Header = headers

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return model.Payload{}, c.transportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.Payload{}, c.transportError(err)
	}

	logger.Infof("%s 响应状态: %d", c.logPrefix, resp.StatusCode)
	if verbose {
		logger.Infof("%s 详细调试 - 响应体: %s", c.logPrefix,
			utils.Truncate(CleanLogContent(string(body)), maxLoggedBody))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Errorf("%s API请求失败. 状态: %d. 正文: %s...", c.logPrefix, resp.StatusCode,
			utils.Truncate(CleanLogContent(string(body)), maxLoggedErrorBody))
		return model.Payload{}, &StatusError{Format: c.Format(), StatusCode: resp.StatusCode}
	}

	var completion openai.ChatCompletionResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return model.Payload{}, c.transportError(fmt.Errorf("malformed response: %w", err))
	}

	return c.extract(completionContent(&completion))
}

func (c *OpenAIChatClient) extract(content string) (model.Payload, error) {
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
	} else {
		logger.Infof("%s 通过 %s 提取到图片(%s)，长度: %d", c.logPrefix, payload.Strategy, payload.Kind, len(payload.Data))
	}
	return payload, nil
}

func (c *OpenAIChatClient) transportError(err error) error {
	logger.Errorf("%s 请求异常: %v", c.logPrefix, err)
	return fmt.Errorf("%w: %s", ErrTransport, utils.Truncate(err.Error(), 100))
}

// logRequest 记录脱敏后的请求：凭证隐藏，内联图片替换为占位符
func (c *OpenAIChatClient) logRequest(endpoint string, headers http.Header, payload *chatCompletionPayload) {
	safe := *payload
	safe.Messages = make([]openai.ChatCompletionMessage, len(payload.Messages))
	for i, msg := range payload.Messages {
		if len(msg.MultiContent) > 0 {
			parts := make([]openai.ChatMessagePart, len(msg.MultiContent))
			for j, part := range msg.MultiContent {
				if part.Type == openai.ChatMessagePartTypeImageURL {
					part = openai.ChatMessagePart{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: imagePlaceholder},
					}
				}
				parts[j] = part
			}
			msg.MultiContent = parts
		}
		safe.Messages[i] = msg
	}

	body, err := json.MarshalIndent(safe, "", "  ")
	if err != nil {
		body = []byte(err.Error())
	}

	logger.Infof("%s 详细调试 - 请求端点: %s", c.logPrefix, endpoint)
	logger.Infof("%s 详细调试 - 请求头: %v", c.logPrefix, safeHeaders(headers))
	logger.Infof("%s 详细调试 - 请求体: %s", c.logPrefix, CleanLogContent(string(body)))
}

// completionContent returns the first choice's content. Replies that use
// content parts are flattened so image parts stay visible to extraction.
func completionContent(resp *openai.ChatCompletionResponse) string {
	if len(resp.Choices) == 0 {
		return ""
	}
	msg := resp.Choices[0].Message
	if msg.Content != "" || len(msg.MultiContent) == 0 {
		return msg.Content
	}

	var sb strings.Builder
	for _, part := range msg.MultiContent {
		switch {
		case part.Type == openai.ChatMessagePartTypeText:
			sb.WriteString(part.Text)
		case part.ImageURL != nil:
			sb.WriteString(part.ImageURL.URL)
		}
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String())
}
