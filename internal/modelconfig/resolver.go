// Package modelconfig resolves model identifiers into complete model
// configurations and derives per-request variants from them.
package modelconfig

import (
	"fmt"
	"strings"

	"artjournal-backend/internal/config"
	"artjournal-backend/internal/model"
	"artjournal-backend/pkg/logger"

	"github.com/spf13/cast"
)

// originalSizeFormats 会自行改写尺寸的格式，需要把原始请求尺寸回填到提示上下文
var originalSizeFormats = map[string]bool{
	model.FormatGemini: true,
	model.FormatZai:    true,
}

// Resolve returns the configuration for modelID, trying in order: the
// nested models.<id> mapping, a field-by-field reassembly of
// models.<id>.<field>, and the nested mapping of defaultModelID. A false
// second result means nothing usable was found.
func Resolve(g config.Getter, modelID, defaultModelID, logPrefix string) (*model.ModelConfig, bool) {
	if g == nil {
		return nil, false
	}

	if cfg, ok := nested(g, modelID); ok {
		return cfg, true
	}

	if cfg, ok := assembled(g, modelID); ok {
		logger.Debugf("%s 模型 %s 配置逐字段组装完成", logPrefix, modelID)
		return cfg, true
	}

	if modelID != defaultModelID && defaultModelID != "" {
		logger.Warnf("%s 模型 %s 配置不存在，尝试默认模型 %s", logPrefix, modelID, defaultModelID)
		if cfg, ok := nested(g, defaultModelID); ok {
			logger.Infof("%s 使用默认模型 %s 的配置", logPrefix, defaultModelID)
			return cfg, true
		}
	}

	logger.Warnf("%s 模型配置未找到: %s", logPrefix, modelID)
	return nil, false
}

func nested(g config.Getter, modelID string) (*model.ModelConfig, bool) {
	raw, err := cast.ToStringMapE(g.Get(modelKey(modelID)))
	if err != nil || len(raw) == 0 {
		return nil, false
	}
	if cast.ToString(raw["base_url"]) == "" {
		return nil, false
	}
	return decode(raw, modelID)
}

func assembled(g config.Getter, modelID string) (*model.ModelConfig, bool) {
	raw := make(map[string]any, len(model.KnownFields))
	for _, field := range model.KnownFields {
		if val := g.Get(modelKey(modelID) + "." + field); val != nil {
			raw[field] = val
		}
	}
	if cast.ToString(raw["base_url"]) == "" {
		return nil, false
	}
	return decode(raw, modelID)
}

func decode(raw map[string]any, modelID string) (*model.ModelConfig, bool) {
	cfg, err := model.DecodeModelConfig(raw)
	if err != nil {
		logger.Warnf("模型 %s 配置格式错误: %v", modelID, err)
		return nil, false
	}
	return cfg, cfg.Usable()
}

func modelKey(modelID string) string {
	return "models." + modelID
}

// MergeNegativePrompt appends extra to the negative prompt. An empty extra
// returns cfg itself; otherwise a copy is returned.
func MergeNegativePrompt(cfg *model.ModelConfig, extra string) *model.ModelConfig {
	if extra == "" || cfg == nil {
		return cfg
	}
	merged := cfg.Clone()
	if merged.NegativePromptAdd != "" {
		merged.NegativePromptAdd = merged.NegativePromptAdd + ", " + extra
	} else {
		merged.NegativePromptAdd = extra
	}
	return merged
}

// InjectOriginalSize records the requested size for formats that resize on
// their own. Other formats get cfg itself back.
func InjectOriginalSize(cfg *model.ModelConfig, size string) *model.ModelConfig {
	if cfg == nil || size == "" || !originalSizeFormats[formatOf(cfg)] {
		return cfg
	}
	injected := cfg.Clone()
	injected.LLMOriginalSize = size
	return injected
}

// EffectiveSize picks the size sent to the provider: the configured default
// when the model pins its size or nothing was requested.
func EffectiveSize(cfg *model.ModelConfig, requested string) string {
	requested = strings.TrimSpace(requested)
	if cfg == nil {
		return requested
	}
	if cfg.FixedSizeEnabled || requested == "" {
		if cfg.DefaultSize != "" {
			return cfg.DefaultSize
		}
		if cfg.DefaultWidth > 0 && cfg.DefaultHeight > 0 {
			return fmt.Sprintf("%dx%d", cfg.DefaultWidth, cfg.DefaultHeight)
		}
	}
	return requested
}

func formatOf(cfg *model.ModelConfig) string {
	if cfg.Format == "" {
		return model.FormatOpenAI
	}
	return strings.ToLower(cfg.Format)
}
