package model

type GenerateRequest struct {
	ChatID         string  `json:"chat_id" binding:"required"`
	ModelID        string  `json:"model_id"`
	Prompt         string  `json:"prompt" binding:"required"`
	Size           string  `json:"size"`
	Strength       float64 `json:"strength"`
	InputImage     string  `json:"input_image"`
	NegativePrompt string  `json:"negative_prompt"`
	// Send 为 true 时通过平台发送图片并按模型配置安排撤回
	Send bool `json:"send"`
}
