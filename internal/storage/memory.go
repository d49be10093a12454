package storage

import (
	"context"
	"sync"
	"time"

	"artjournal-backend/internal/model"
)

type MemoryStorage struct {
	chats map[string]*model.Chat
	mu    sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		chats: make(map[string]*model.Chat),
	}
}

func (m *MemoryStorage) Init() error {
	return nil
}

func (m *MemoryStorage) Close() error {
	return nil
}

func (m *MemoryStorage) Backup() error {
	return nil
}

func (m *MemoryStorage) AddMessage(_ context.Context, message *model.Message) error {
	if message == nil || message.ChatID == "" {
		return ErrInvalidData
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	chat, exists := m.chats[message.ChatID]
	if !exists {
		chat = &model.Chat{ID: message.ChatID, CreatedAt: now}
		m.chats[message.ChatID] = chat
	}

	chat.Messages = append(chat.Messages, *message)
	chat.UpdatedAt = now
	return nil
}

func (m *MemoryStorage) RecentMessages(_ context.Context, chatID string, start, end time.Time, limit int) ([]model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chat, exists := m.chats[chatID]
	if !exists {
		return []model.Message{}, nil
	}
	return recent(chat.Messages, start, end, limit), nil
}

func (m *MemoryStorage) ListMessages(_ context.Context, chatID string) ([]model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chat, exists := m.chats[chatID]
	if !exists {
		return nil, ErrChatNotFound
	}

	messages := make([]model.Message, len(chat.Messages))
	copy(messages, chat.Messages)
	return messages, nil
}
