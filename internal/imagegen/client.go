// Package imagegen implements the image generation clients. Every provider
// format shares one contract: a prompt and a resolved model configuration
// go in, an image payload (inline base64 or a link) or an error comes out.
package imagegen

import (
	"context"
	"fmt"

	"artjournal-backend/internal/model"
)

// Request is one generation call. InputImage holds base64 image data for
// image-to-image requests and is empty for text-to-image.
type Request struct {
	Prompt     string
	Config     *model.ModelConfig
	Size       string
	Strength   float64
	InputImage string
}

// Client 是各格式客户端的统一能力接口
type Client interface {
	Format() string
	Generate(ctx context.Context, req *Request) (model.Payload, error)
}

const negativeClause = "\n\nNegative prompt (avoid these): "

// FullPrompt 拼接基础提示词、模型附加提示词以及自然语言形式的负面提示词
func FullPrompt(req *Request) string {
	prompt := req.Prompt
	if req.Config == nil {
		return prompt
	}
	prompt += req.Config.CustomPromptAdd
	if req.Config.NegativePromptAdd != "" {
		prompt += negativeClause + req.Config.NegativePromptAdd
	}
	return prompt
}

func systemInstruction(size string) string {
	return "You are an image generation assistant. Generate an image based on the user's description. " +
		fmt.Sprintf("Target image size: %s.", size)
}

func textToImageInstruction(prompt string) string {
	return "Please generate an image: " + prompt
}

func imageToImageInstruction(prompt string, strength float64) string {
	strengthText := ""
	if strength != 0 {
		strengthText = fmt.Sprintf(" (modification strength: %v)", strength)
	}
	return fmt.Sprintf("Please modify this image based on the following description%s: %s", strengthText, prompt)
}

func validate(req *Request) error {
	if req == nil || !req.Config.Usable() {
		return ErrConfigurationMissing
	}
	return nil
}
