package imagegen

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"artjournal-backend/internal/config"
	"artjournal-backend/internal/model"
	"artjournal-backend/internal/utils"
	"artjournal-backend/pkg/logger"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIImagesClient 走标准 /images/generations 接口，结果直接来自结构化字段，无需文本提取
type OpenAIImagesClient struct {
	settings  config.Getter
	logPrefix string
}

func NewOpenAIImagesClient(settings config.Getter, logPrefix string) *OpenAIImagesClient {
	return &OpenAIImagesClient{
		settings:  settings,
		logPrefix: logPrefix + " (OpenAI)",
	}
}

func (c *OpenAIImagesClient) Format() string {
	return model.FormatOpenAI
}

func (c *OpenAIImagesClient) Generate(ctx context.Context, req *Request) (model.Payload, error) {
	if err := validate(req); err != nil {
		return model.Payload{}, err
	}
	if req.InputImage != "" {
		return model.Payload{}, ErrImg2ImgUnsupported
	}
	cfg := req.Config

	proxy := config.Proxy(c.settings)
	httpClient := utils.NewHTTPClient(config.RequestTimeout(proxy), proxy)
	httpClient.Transport = newDebugTransport(httpClient.Transport, config.VerboseDebug(c.settings), c.logPrefix)
	defer httpClient.CloseIdleConnections()

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	clientConfig.HTTPClient = httpClient
	client := openai.NewClientWithConfig(clientConfig)

	prompt := FullPrompt(req)
	logger.Infof("%s 发起 images/generations 请求: %s, Prompt: %s...", c.logPrefix, cfg.Model, utils.Truncate(prompt, 30))

	resp, err := client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          cfg.Model,
		N:              1,
		Size:           req.Size,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return model.Payload{}, c.mapError(err)
	}

	if len(resp.Data) == 0 {
		logger.Errorf("%s 响应中无图片数据", c.logPrefix)
		return model.Payload{}, ErrEmptyContent
	}

	image := resp.Data[0]
	switch {
	case image.B64JSON != "":
		data := image.B64JSON
		if strings.HasPrefix(data, "data:") {
			if _, after, ok := strings.Cut(data, ","); ok {
				data = after
			}
		}
		return model.Base64Payload(data, ""), nil
	case image.URL != "":
		return model.URLPayload(image.URL, ""), nil
	default:
		return model.Payload{}, ErrNoImage
	}
}

func (c *OpenAIImagesClient) mapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		logger.Errorf("%s API请求失败. 状态: %d. 信息: %s", c.logPrefix, apiErr.HTTPStatusCode,
			utils.Truncate(apiErr.Message, maxLoggedErrorBody))
		return &StatusError{Format: c.Format(), StatusCode: apiErr.HTTPStatusCode}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		logger.Errorf("%s API请求失败. 状态: %d", c.logPrefix, reqErr.HTTPStatusCode)
		return &StatusError{Format: c.Format(), StatusCode: reqErr.HTTPStatusCode}
	}

	logger.Errorf("%s 请求异常: %v", c.logPrefix, err)
	return fmt.Errorf("%w: %s", ErrTransport, utils.Truncate(err.Error(), 100))
}
