package model

import "time"

// GenerateResponse 生图接口返回。失败时 Success=false，Message 为简短的用户可读提示
type GenerateResponse struct {
	Success         bool   `json:"success"`
	Message         string `json:"message,omitempty"`
	ImageBase64     string `json:"image_base64,omitempty"`
	MessageID       string `json:"message_id,omitempty"`
	RecallScheduled bool   `json:"recall_scheduled"`
	Model           string `json:"model,omitempty"`
	Format          string `json:"format,omitempty"`
	RequestID       string `json:"request_id"`
}

// Message 是聊天中一条已存储的消息。
// ID 为平台原生的纯数字 ID 时才可撤回，内部生成的 UUID 不可撤回。
type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Chat 按聊天 ID 聚合的消息记录
type Chat struct {
	ID        string    `json:"id"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
