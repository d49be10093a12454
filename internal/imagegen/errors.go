package imagegen

import (
	"errors"
	"fmt"
)

var (
	ErrConfigurationMissing = errors.New("model configuration not found")
	ErrUnsupportedFormat    = errors.New("unsupported api format")
	ErrImg2ImgUnsupported   = errors.New("model does not support image to image")
	ErrTransport            = errors.New("image api request failed")
	ErrEmptyContent         = errors.New("no content in response")
	ErrNoImage              = errors.New("could not extract image from response")
)

// StatusError 非 2xx 响应。响应体只记录在日志中，不返回给调用方
type StatusError struct {
	Format     string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s api request failed (status %d)", e.Format, e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	return ErrTransport
}

// UserMessage 把内部错误转换成简短、不含技术细节的用户提示
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var statusErr *StatusError
	switch {
	case errors.Is(err, ErrConfigurationMissing):
		return "没有找到可用的绘图模型配置"
	case errors.Is(err, ErrUnsupportedFormat):
		return "当前模型的接口格式暂不支持"
	case errors.Is(err, ErrImg2ImgUnsupported):
		return "当前模型不支持图生图"
	case errors.As(err, &statusErr):
		return fmt.Sprintf("绘图服务暂时不可用（状态码 %d）", statusErr.StatusCode)
	case errors.Is(err, ErrTransport):
		return "绘图服务连接失败，请稍后再试"
	case errors.Is(err, ErrEmptyContent), errors.Is(err, ErrNoImage):
		return "没能从绘图结果中拿到图片"
	default:
		return "图片生成失败，请稍后再试"
	}
}
