// Package platform talks to the chat platform's OneBot-style HTTP API:
// every command is a JSON POST to {base_url}/{command}.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"artjournal-backend/internal/config"
	"artjournal-backend/internal/model"
	"artjournal-backend/internal/utils"
	"artjournal-backend/pkg/logger"

	"github.com/google/uuid"
	"github.com/spf13/cast"
)

var ErrNotConfigured = errors.New("platform base url not configured")

var imageSegment = regexp.MustCompile(`\[CQ:image,[^\]]*\]`)

// Response 平台返回的通用结构，status/retcode/code 任一表示成功即可
type Response struct {
	Status  string `json:"status"`
	Retcode *int   `json:"retcode"`
	Code    *int   `json:"code"`
	Data    any    `json:"data"`
	Message string `json:"message"`

	// RecordedID 命令成功且已记入存储时的消息 ID（平台 ID 或内部 UUID）
	RecordedID string `json:"-"`
}

func (r *Response) Succeeded() bool {
	if r == nil {
		return false
	}
	switch strings.ToLower(r.Status) {
	case "ok", "success":
		return true
	}
	return (r.Retcode != nil && *r.Retcode == 0) || (r.Code != nil && *r.Code == 0)
}

// MessageID 返回 data.message_id，没有时为空
func (r *Response) MessageID() string {
	data, ok := r.Data.(map[string]any)
	if !ok {
		return ""
	}
	id, err := cast.ToStringE(data["message_id"])
	if err != nil {
		return ""
	}
	return id
}

// Recorder 保存机器人发出的消息
type Recorder interface {
	AddMessage(ctx context.Context, message *model.Message) error
}

type Client struct {
	baseURL     string
	accessToken string
	botID       string
	httpClient  *http.Client
	recorder    Recorder
}

func NewClient(cfg config.PlatformConfig, botID string, recorder Recorder) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		accessToken: cfg.AccessToken,
		botID:       botID,
		httpClient:  utils.NewHTTPClient(timeout, nil),
		recorder:    recorder,
	}
}

// Send 发送一条平台命令。storeMessage 为 true 且命令成功时，把发出的消息记入存储
func (c *Client) Send(ctx context.Context, command string, args map[string]any, storeMessage bool) (any, error) {
	if c.baseURL == "" {
		return nil, ErrNotConfigured
	}

	data, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+command, bytes.NewBuffer(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("command %s failed with status %d: %s", command, resp.StatusCode, utils.Truncate(string(body), 300))
	}

	var response Response
	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	if err := decoder.Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if storeMessage && response.Succeeded() {
		c.record(ctx, args, &response)
	}
	return &response, nil
}

func (c *Client) record(ctx context.Context, args map[string]any, resp *Response) {
	if c.recorder == nil {
		return
	}

	id := resp.MessageID()
	if id == "" {
		id = uuid.New().String()
	}
	msg := &model.Message{
		ID:        id,
		ChatID:    cast.ToString(args["chat_id"]),
		UserID:    c.botID,
		Content:   imageSegment.ReplaceAllString(cast.ToString(args["message"]), "[CQ:image]"),
		Timestamp: time.Now(),
	}
	if err := c.recorder.AddMessage(ctx, msg); err != nil {
		logger.Warnf("记录已发送消息失败: %v", err)
		return
	}
	resp.RecordedID = id
}

// SendImage 以 CQ 图片段发送 base64 图片，返回记录下的消息 ID
func (c *Client) SendImage(ctx context.Context, chatID, imageBase64 string) (string, error) {
	args := map[string]any{
		"chat_id": chatID,
		"message": fmt.Sprintf("[CQ:image,file=base64://%s]", imageBase64),
	}

	result, err := c.Send(ctx, "send_msg", args, true)
	if err != nil {
		return "", err
	}

	resp := result.(*Response)
	if !resp.Succeeded() {
		return "", fmt.Errorf("send_msg rejected: status=%q %s", resp.Status, resp.Message)
	}
	if resp.RecordedID != "" {
		return resp.RecordedID, nil
	}
	return resp.MessageID(), nil
}
