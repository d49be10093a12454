package storage

import (
	"context"
	"sort"
	"time"

	"artjournal-backend/internal/model"
)

// Store 按聊天 ID 保存消息，撤回流程通过 RecentMessages 查找机器人自己发出的消息
type Store interface {
	// 消息管理
	AddMessage(ctx context.Context, message *model.Message) error
	RecentMessages(ctx context.Context, chatID string, start, end time.Time, limit int) ([]model.Message, error)
	ListMessages(ctx context.Context, chatID string) ([]model.Message, error)

	// 存储管理
	Init() error
	Close() error
	Backup() error
}

// recent returns the messages with start <= timestamp <= end, newest first,
// capped at limit (limit <= 0 means no cap).
func recent(messages []model.Message, start, end time.Time, limit int) []model.Message {
	matched := make([]model.Message, 0, len(messages))
	for i := len(messages) - 1; i >= 0; i-- {
		msg := messages[i]
		if msg.Timestamp.Before(start) || msg.Timestamp.After(end) {
			continue
		}
		matched = append(matched, msg)
	}

	// 时间戳相同时后写入的排在前面
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched
}
