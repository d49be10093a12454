package imagegen

import (
	"regexp"

	"artjournal-backend/internal/model"
	"artjournal-backend/pkg/logger"
)

const (
	StrategyMarkdown = "markdown"
	StrategyDataURI  = "data_uri"
	StrategyBase64   = "base64"
	StrategyImageURL = "image_url"
	StrategyBareURL  = "bare_url"

	// 没有图片签名前缀的 base64 串至少要这么长才被采纳
	unprefixedMinRun = 1000
)

var (
	markdownImagePattern = regexp.MustCompile(`!\[.*?\]\((https?://[^\s)]+)\)`)
	dataURIPattern       = regexp.MustCompile(`data:image/[a-zA-Z]+;base64,([A-Za-z0-9+/=]+)`)
	base64RunPattern     = regexp.MustCompile(`[A-Za-z0-9+/]{200,}={0,2}`)
	imageURLPattern      = regexp.MustCompile(`(?i)https?://[^\s<>"']+\.(?:png|jpg|jpeg|gif|webp|bmp)(?:\?[^\s<>"']*)?`)
	anyURLPattern        = regexp.MustCompile(`https?://[^\s<>"']+`)
)

// strategy 尝试在回复文本中定位图片，未命中时 ok 为 false
type strategy struct {
	name  string
	match func(content string) (model.Payload, bool)
}

// strategies 按优先级排列，命中即停止，不合并结果。
// base64 检测必须在普通 URL 之前，避免在内嵌 base64 中误截到 "http" 子串。
var strategies = []strategy{
	{StrategyMarkdown, matchMarkdownImage},
	{StrategyDataURI, matchDataURI},
	{StrategyBase64, matchBase64Run},
	{StrategyImageURL, matchImageURL},
	{StrategyBareURL, matchAnyURL},
}

// Extract locates an image payload inside a generation reply. A bare URL
// result (Strategy == StrategyBareURL) is a low-confidence guess.
func Extract(content string) (model.Payload, error) {
	if content == "" {
		return model.Payload{}, ErrEmptyContent
	}

	for _, s := range strategies {
		if payload, ok := s.match(content); ok {
			logger.Debugf("extracted %s image via %s, length %d", payload.Kind, s.name, len(payload.Data))
			return payload, nil
		}
	}
	return model.Payload{}, ErrNoImage
}

func matchMarkdownImage(content string) (model.Payload, bool) {
	m := markdownImagePattern.FindStringSubmatch(content)
	if m == nil {
		return model.Payload{}, false
	}
	return model.URLPayload(m[1], StrategyMarkdown), true
}

func matchDataURI(content string) (model.Payload, bool) {
	m := dataURIPattern.FindStringSubmatch(content)
	if m == nil {
		return model.Payload{}, false
	}
	return model.Base64Payload(m[1], StrategyDataURI), true
}

// matchBase64Run picks the longest run of base64 characters. Short runs
// without an image signature are treated as incidental hashes or tokens.
func matchBase64Run(content string) (model.Payload, bool) {
	longest := ""
	for _, run := range base64RunPattern.FindAllString(content, -1) {
		if len(run) > len(longest) {
			longest = run
		}
	}
	if longest == "" {
		return model.Payload{}, false
	}
	if !model.HasBase64Prefix(longest) && len(longest) <= unprefixedMinRun {
		return model.Payload{}, false
	}
	return model.Base64Payload(longest, StrategyBase64), true
}

func matchImageURL(content string) (model.Payload, bool) {
	url := imageURLPattern.FindString(content)
	if url == "" {
		return model.Payload{}, false
	}
	return model.URLPayload(url, StrategyImageURL), true
}

func matchAnyURL(content string) (model.Payload, bool) {
	url := anyURLPattern.FindString(content)
	if url == "" {
		return model.Payload{}, false
	}
	return model.URLPayload(url, StrategyBareURL), true
}

// CleanLogContent collapses long base64 runs so log lines stay small and
// do not leak image data.
func CleanLogContent(content string) string {
	return base64RunPattern.ReplaceAllString(content, "[BASE64_DATA...]")
}
