package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"artjournal-backend/internal/model"
	"artjournal-backend/pkg/logger"
)

// DiskStorage 每个聊天一个 JSON 文件，写入走临时文件 + rename
type DiskStorage struct {
	dataDir   string
	mu        sync.RWMutex
	cache     map[string]*model.Chat
	cacheSize int
}

type ChatIndex struct {
	ID           string    `json:"id"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func NewDiskStorage(dataDir string, cacheSize int) *DiskStorage {
	if cacheSize <= 0 {
		cacheSize = 1
	}
	return &DiskStorage{
		dataDir:   dataDir,
		cache:     make(map[string]*model.Chat),
		cacheSize: cacheSize,
	}
}

func (d *DiskStorage) Init() error {
	if err := d.createDirectories(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageInit, err)
	}

	if err := d.loadChats(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageInit, err)
	}

	logger.Info("Disk storage initialized successfully")
	return nil
}

func (d *DiskStorage) createDirectories() error {
	dirs := []string{
		d.dataDir,
		filepath.Join(d.dataDir, "chats"),
		filepath.Join(d.dataDir, "backup"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	return nil
}

func (d *DiskStorage) indexPath() string {
	return filepath.Join(d.dataDir, "chats.json")
}

// chatPath 聊天 ID 可能含有路径分隔符，转义后作为文件名
func (d *DiskStorage) chatPath(chatID string) string {
	return filepath.Join(d.dataDir, "chats", url.PathEscape(chatID)+".json")
}

func (d *DiskStorage) loadChats() error {
	if _, err := os.Stat(d.indexPath()); os.IsNotExist(err) {
		return writeJSONAtomic(d.indexPath(), []*ChatIndex{})
	}

	indexes, err := d.readIndex()
	if err != nil {
		return err
	}

	// 最近更新的聊天优先进入缓存
	sort.Slice(indexes, func(i, j int) bool {
		return indexes[i].UpdatedAt.After(indexes[j].UpdatedAt)
	})

	for _, index := range indexes {
		if len(d.cache) >= d.cacheSize {
			break
		}

		chat, err := d.loadChatFromFile(index.ID)
		if err != nil {
			logger.Errorf("Failed to load chat %s: %v", index.ID, err)
			continue
		}

		d.cache[index.ID] = chat
	}

	return nil
}

func (d *DiskStorage) readIndex() ([]*ChatIndex, error) {
	data, err := os.ReadFile(d.indexPath())
	if err != nil {
		return nil, err
	}

	var indexes []*ChatIndex
	if err := json.Unmarshal(data, &indexes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return indexes, nil
}

func (d *DiskStorage) loadChatFromFile(chatID string) (*model.Chat, error) {
	data, err := os.ReadFile(d.chatPath(chatID))
	if err != nil {
		return nil, err
	}

	var chat model.Chat
	if err := json.Unmarshal(data, &chat); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	if chat.Messages == nil {
		chat.Messages = []model.Message{}
	}
	return &chat, nil
}

func writeJSONAtomic(path string, v any) error {
	tempPath := path + ".tmp"

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}

	return os.Rename(tempPath, path)
}

// chatLocked 必须在持有写锁时调用
func (d *DiskStorage) chatLocked(chatID string) (*model.Chat, error) {
	if chat, exists := d.cache[chatID]; exists {
		return chat, nil
	}

	chat, err := d.loadChatFromFile(chatID)
	if err != nil {
		return nil, err
	}
	d.cache[chatID] = chat
	return chat, nil
}

func (d *DiskStorage) AddMessage(_ context.Context, message *model.Message) error {
	if message == nil || message.ChatID == "" {
		return ErrInvalidData
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	chat, err := d.chatLocked(message.ChatID)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("%w: %v", ErrFileOperation, err)
		}
		chat = &model.Chat{ID: message.ChatID, Messages: []model.Message{}, CreatedAt: now}
		d.cache[message.ChatID] = chat
	}

	chat.Messages = append(chat.Messages, *message)
	chat.UpdatedAt = now

	if err := writeJSONAtomic(d.chatPath(chat.ID), chat); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	if err := d.updateIndex(chat); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	d.evictCache()
	return nil
}

func (d *DiskStorage) getChat(chatID string) (*model.Chat, error) {
	d.mu.RLock()
	if chat, exists := d.cache[chatID]; exists {
		d.mu.RUnlock()
		return chat, nil
	}
	d.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()

	chat, err := d.chatLocked(chatID)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrFileOperation, err)
	}
	d.evictCache()
	return chat, nil
}

func (d *DiskStorage) RecentMessages(_ context.Context, chatID string, start, end time.Time, limit int) ([]model.Message, error) {
	chat, err := d.getChat(chatID)
	if errors.Is(err, ErrChatNotFound) {
		return []model.Message{}, nil
	}
	if err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	return recent(chat.Messages, start, end, limit), nil
}

func (d *DiskStorage) ListMessages(_ context.Context, chatID string) ([]model.Message, error) {
	chat, err := d.getChat(chatID)
	if err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	messages := make([]model.Message, len(chat.Messages))
	copy(messages, chat.Messages)
	return messages, nil
}

func (d *DiskStorage) updateIndex(chat *model.Chat) error {
	indexes, err := d.readIndex()
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	entry := &ChatIndex{
		ID:           chat.ID,
		MessageCount: len(chat.Messages),
		CreatedAt:    chat.CreatedAt,
		UpdatedAt:    chat.UpdatedAt,
	}

	replaced := false
	for i, index := range indexes {
		if index.ID == chat.ID {
			indexes[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		indexes = append(indexes, entry)
	}

	return writeJSONAtomic(d.indexPath(), indexes)
}

func (d *DiskStorage) evictCache() {
	if len(d.cache) <= d.cacheSize {
		return
	}

	type cacheEntry struct {
		id        string
		updatedAt time.Time
	}

	entries := make([]cacheEntry, 0, len(d.cache))
	for id, chat := range d.cache {
		entries = append(entries, cacheEntry{
			id:        id,
			updatedAt: chat.UpdatedAt,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].updatedAt.Before(entries[j].updatedAt)
	})

	toEvict := len(d.cache) - d.cacheSize
	for i := 0; i < toEvict; i++ {
		delete(d.cache, entries[i].id)
	}
}

func (d *DiskStorage) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.cache = make(map[string]*model.Chat)
	return nil
}

// Backup 把当前的聊天文件和索引复制到 backup/backup_<unix 时间> 下
func (d *DiskStorage) Backup() error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	backupDir := filepath.Join(d.dataDir, "backup", fmt.Sprintf("backup_%d", time.Now().UnixNano()))
	dstDir := filepath.Join(backupDir, "chats")
	if err := os.MkdirAll(dstDir, 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	if err := copyDir(filepath.Join(d.dataDir, "chats"), dstDir); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	if err := copyFile(d.indexPath(), filepath.Join(backupDir, "chats.json")); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	logger.Infof("Backup completed: %s", backupDir)
	return nil
}

func copyDir(src, dst string) error {
	files, err := os.ReadDir(src)
	if err != nil {
		return err
	}

	for _, file := range files {
		if file.IsDir() || strings.HasSuffix(file.Name(), ".tmp") {
			continue
		}
		if err := copyFile(filepath.Join(src, file.Name()), filepath.Join(dst, file.Name())); err != nil {
			return err
		}
	}

	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}

	return os.WriteFile(dst, data, 0644)
}
