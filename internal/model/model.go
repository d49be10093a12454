package model

import (
	"fmt"
	"maps"

	"github.com/go-viper/mapstructure/v2"
)

// 已知的 API 格式
const (
	FormatOpenAI     = "openai"
	FormatOpenAIChat = "openai-chat"
	FormatQwen       = "qwen"
	FormatDoubao     = "doubao"
	FormatGemini     = "gemini"
	FormatZai        = "zai"
)

// KnownFields 是 models.<id>.<field> 逐字段回退组装时查询的字段列表。
// 新增字段需要同时加到 ModelConfig 上。
var KnownFields = []string{
	"name", "base_url", "api_key", "format", "model",
	"fixed_size_enabled", "default_size", "seed",
	"guidance_scale", "num_inference_steps", "watermark",
	"custom_prompt_add", "negative_prompt_add", "artist",
	"support_img2img", "auto_recall_delay",
	"cfg", "sampler", "nocache", "noise_schedule",
	"img2img_model_index", "image_upload_url",
	"default_width", "default_height",
	"safety_settings",
}

// ModelConfig 单个生图模型的完整配置。解析完成后不可修改，派生配置一律通过 Clone 产生。
type ModelConfig struct {
	Name              string  `mapstructure:"name" json:"name,omitempty"`
	BaseURL           string  `mapstructure:"base_url" json:"base_url"`
	APIKey            string  `mapstructure:"api_key" json:"-"`
	Format            string  `mapstructure:"format" json:"format,omitempty"`
	Model             string  `mapstructure:"model" json:"model,omitempty"`
	FixedSizeEnabled  bool    `mapstructure:"fixed_size_enabled" json:"fixed_size_enabled,omitempty"`
	DefaultSize       string  `mapstructure:"default_size" json:"default_size,omitempty"`
	Seed              int64   `mapstructure:"seed" json:"seed"`
	GuidanceScale     float64 `mapstructure:"guidance_scale" json:"guidance_scale,omitempty"`
	NumInferenceSteps int     `mapstructure:"num_inference_steps" json:"num_inference_steps,omitempty"`
	Watermark         bool    `mapstructure:"watermark" json:"watermark,omitempty"`
	CustomPromptAdd   string  `mapstructure:"custom_prompt_add" json:"custom_prompt_add,omitempty"`
	NegativePromptAdd string  `mapstructure:"negative_prompt_add" json:"negative_prompt_add,omitempty"`
	Artist            string  `mapstructure:"artist" json:"artist,omitempty"`
	SupportImg2Img    bool    `mapstructure:"support_img2img" json:"support_img2img,omitempty"`
	AutoRecallDelay   int     `mapstructure:"auto_recall_delay" json:"auto_recall_delay,omitempty"`
	CFG               float64 `mapstructure:"cfg" json:"cfg,omitempty"`
	Sampler           string  `mapstructure:"sampler" json:"sampler,omitempty"`
	NoCache           bool    `mapstructure:"nocache" json:"nocache,omitempty"`
	NoiseSchedule     string  `mapstructure:"noise_schedule" json:"noise_schedule,omitempty"`
	Img2ImgModelIndex int     `mapstructure:"img2img_model_index" json:"img2img_model_index,omitempty"`
	ImageUploadURL    string  `mapstructure:"image_upload_url" json:"image_upload_url,omitempty"`
	DefaultWidth      int     `mapstructure:"default_width" json:"default_width,omitempty"`
	DefaultHeight     int     `mapstructure:"default_height" json:"default_height,omitempty"`
	SafetySettings    any     `mapstructure:"safety_settings" json:"safety_settings,omitempty"`

	// LLMOriginalSize 仅对会自行改写尺寸的格式注入（见 modelconfig.InjectOriginalSize）
	LLMOriginalSize string `mapstructure:"_llm_original_size" json:"_llm_original_size,omitempty"`

	// Extra 保存未识别的供应商专有字段
	Extra map[string]any `mapstructure:",remain" json:"extra,omitempty"`
}

// DecodeModelConfig builds a ModelConfig from a raw config mapping.
// Absent seed decodes to -1 and absent format to "openai".
func DecodeModelConfig(raw map[string]any) (*ModelConfig, error) {
	cfg := &ModelConfig{Seed: -1}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("decode model config: %w", err)
	}
	if cfg.Format == "" {
		cfg.Format = FormatOpenAI
	}
	return cfg, nil
}

// Usable 仅当 base_url 非空时配置可用
func (c *ModelConfig) Usable() bool {
	return c != nil && c.BaseURL != ""
}

// Clone returns a shallow copy; the Extra map is copied so the clone can
// be extended without touching the original.
func (c *ModelConfig) Clone() *ModelConfig {
	cp := *c
	if c.Extra != nil {
		cp.Extra = maps.Clone(c.Extra)
	}
	return &cp
}
