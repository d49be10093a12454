// Package recall deletes a just-sent bot message after a delay. Each
// scheduled recall runs in its own goroutine: wait a grace period, look up
// the bot's latest platform message in the chat, wait the recall delay,
// then try the delete commands in order until one succeeds.
package recall

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"artjournal-backend/internal/model"
	"artjournal-backend/pkg/logger"

	"github.com/google/uuid"
	"github.com/spf13/cast"
)

// DefaultCommands are tried in this order.
var DefaultCommands = []string{"DELETE_MSG", "delete_msg", "RECALL_MSG", "recall_msg"}

// Store 查询聊天内最近的消息，结果按时间倒序
type Store interface {
	RecentMessages(ctx context.Context, chatID string, start, end time.Time, limit int) ([]model.Message, error)
}

// Dispatcher 发送平台命令
type Dispatcher interface {
	Send(ctx context.Context, command string, args map[string]any, storeMessage bool) (any, error)
}

type Options struct {
	Grace    time.Duration
	Window   time.Duration
	Limit    int
	Commands []string
	BotID    string
	// Now 可替换以便测试
	Now func() time.Time
	// Observe 在每次撤回结束时收到最终状态
	Observe func(State)
}

func (o Options) withDefaults() Options {
	if o.Grace < 0 {
		o.Grace = 0
	}
	if o.Window <= 0 {
		o.Window = 10 * time.Second
	}
	if o.Limit <= 0 {
		o.Limit = 5
	}
	if len(o.Commands) == 0 {
		o.Commands = DefaultCommands
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

type Scheduler struct {
	store      Store
	dispatcher Dispatcher
	opts       Options

	mu      sync.Mutex
	handles map[string]*Handle
	closed  bool
}

func NewScheduler(store Store, dispatcher Dispatcher, opts Options) *Scheduler {
	return &Scheduler{
		store:      store,
		dispatcher: dispatcher,
		opts:       opts.withDefaults(),
		handles:    make(map[string]*Handle),
	}
}

// Schedule starts a recall for the bot's latest message in chatID. It
// returns immediately; the returned handle can cancel the recall while it
// is still waiting.
func (s *Scheduler) Schedule(chatID string, delay time.Duration, logPrefix string) *Handle {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{
		ID:     uuid.New().String(),
		ChatID: chatID,
		cancel: cancel,
		done:   make(chan struct{}),
		state:  StateScheduled,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		h.finish(StateCancelled)
		return h
	}
	s.handles[h.ID] = h
	s.mu.Unlock()

	go s.run(ctx, h, delay, logPrefix)
	return h
}

func (s *Scheduler) run(ctx context.Context, h *Handle, delay time.Duration, logPrefix string) {
	final := StateFailed
	defer func() {
		if rec := recover(); rec != nil {
			logger.Errorf("%s 自动撤回失败: %v", logPrefix, rec)
			final = StateFailed
		}
		h.cancel()
		s.forget(h.ID)
		if s.opts.Observe != nil {
			s.opts.Observe(final)
		}
		h.finish(final)
	}()

	if !sleep(ctx, s.opts.Grace) {
		logger.Debugf("%s 自动撤回任务被取消", logPrefix)
		final = StateCancelled
		return
	}

	target, err := s.locate(ctx, h.ChatID, logPrefix)
	if err != nil {
		logger.Errorf("%s 自动撤回失败: %v", logPrefix, err)
		final = StateFailed
		return
	}
	if target == "" {
		logger.Warnf("%s 未找到有效的平台消息ID（需要纯数字格式）", logPrefix)
		final = StateNotFound
		return
	}
	h.located(target)

	logger.Infof("%s 安排消息自动撤回，延时: %s，消息ID: %s", logPrefix, delay, target)
	if !sleep(ctx, delay) {
		logger.Debugf("%s 自动撤回任务被取消", logPrefix)
		final = StateCancelled
		return
	}

	// 过了最后一次等待后不再响应取消，撤回命令执行到底
	if s.recall(context.WithoutCancel(ctx), target, logPrefix) {
		final = StateRecalled
		return
	}
	logger.Warnf("%s 消息自动撤回失败，消息ID: %s，已尝试所有命令", logPrefix, target)
	final = StateFailed
}

// locate 返回窗口内机器人最近一条纯数字 ID 的消息，找不到时返回空串
func (s *Scheduler) locate(ctx context.Context, chatID, logPrefix string) (string, error) {
	now := s.opts.Now()
	messages, err := s.store.RecentMessages(ctx, chatID, now.Add(-s.opts.Window), now.Add(time.Second), s.opts.Limit)
	if err != nil {
		return "", fmt.Errorf("query recent messages: %w", err)
	}

	for _, msg := range messages {
		if msg.UserID != s.opts.BotID {
			continue
		}
		if isDigits(msg.ID) {
			return msg.ID, nil
		}
		logger.Debugf("%s 跳过非平台消息ID: %s", logPrefix, msg.ID)
	}
	return "", nil
}

func (s *Scheduler) recall(ctx context.Context, messageID, logPrefix string) bool {
	for _, cmd := range s.opts.Commands {
		result, err := s.dispatcher.Send(ctx, cmd, map[string]any{"message_id": messageID}, false)
		if err != nil {
			logger.Debugf("%s 撤回命令 %s 失败: %v", logPrefix, cmd, err)
			continue
		}
		if Succeeded(result) {
			logger.Infof("%s 消息自动撤回成功，命令: %s，消息ID: %s", logPrefix, cmd, messageID)
			return true
		}
	}
	return false
}

// Succeeded 判断命令结果：布尔 true，或 status 为 ok/success，或 retcode/code 为 0
func Succeeded(result any) bool {
	switch r := result.(type) {
	case bool:
		return r
	case interface{ Succeeded() bool }:
		return r.Succeeded()
	case map[string]any:
		status := strings.ToLower(cast.ToString(r["status"]))
		if status == "ok" || status == "success" {
			return true
		}
		return isZero(r["retcode"]) || isZero(r["code"])
	default:
		return false
	}
}

// isZero accepts numeric kinds only; the string "0" is not a success code.
func isZero(v any) bool {
	switch n := v.(type) {
	case bool:
		return !n
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return cast.ToFloat64(n) == 0
	case json.Number:
		f, err := n.Float64()
		return err == nil && f == 0
	default:
		return false
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (s *Scheduler) forget(id string) {
	s.mu.Lock()
	delete(s.handles, id)
	s.mu.Unlock()
}

// Pending returns the handles that have not finished yet.
func (s *Scheduler) Pending() []*Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Handle, 0, len(s.handles))
	for _, h := range s.handles {
		out = append(out, h)
	}
	return out
}

// CancelChat cancels every pending recall of chatID and returns how many
// were cancelled.
func (s *Scheduler) CancelChat(chatID string) int {
	n := 0
	for _, h := range s.Pending() {
		if h.ChatID == chatID {
			h.Cancel()
			n++
		}
	}
	return n
}

// Shutdown cancels all pending recalls and waits for them to exit or for
// ctx to end. Later Schedule calls are cancelled immediately.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	pending := s.Pending()
	for _, h := range pending {
		h.Cancel()
	}
	for _, h := range pending {
		select {
		case <-h.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
