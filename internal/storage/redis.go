package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"artjournal-backend/internal/model"
	"artjournal-backend/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// RedisStorage 每个聊天使用三个键：
//
//	<prefix>chat:<id>:seq       写入序号计数器
//	<prefix>chat:<id>:messages  hash，序号 -> 消息 JSON
//	<prefix>chat:<id>:timeline  zset，序号按毫秒时间戳排序
type RedisStorage struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisStorage takes ownership of client; Close closes it.
// A positive ttl is refreshed on every write to the chat.
func NewRedisStorage(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisStorage {
	return &RedisStorage{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
	}
}

func (r *RedisStorage) key(chatID, suffix string) string {
	return r.keyPrefix + "chat:" + chatID + ":" + suffix
}

func (r *RedisStorage) Init() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageInit, err)
	}
	logger.Info("Redis storage initialized successfully")
	return nil
}

func (r *RedisStorage) Close() error {
	return r.client.Close()
}

// Backup 是空操作，持久化由 Redis 服务端的 RDB/AOF 负责
func (r *RedisStorage) Backup() error {
	return nil
}

func (r *RedisStorage) AddMessage(ctx context.Context, message *model.Message) error {
	if message == nil || message.ChatID == "" {
		return ErrInvalidData
	}

	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidData, err)
	}

	chatID := message.ChatID
	seq, err := r.client.Incr(ctx, r.key(chatID, "seq")).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	field := strconv.FormatInt(seq, 10)

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.key(chatID, "messages"), field, data)
		pipe.ZAdd(ctx, r.key(chatID, "timeline"), redis.Z{
			Score:  float64(message.Timestamp.UnixMilli()),
			Member: field,
		})
		if r.ttl > 0 {
			for _, suffix := range []string{"seq", "messages", "timeline"} {
				pipe.Expire(ctx, r.key(chatID, suffix), r.ttl)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return nil
}

func (r *RedisStorage) RecentMessages(ctx context.Context, chatID string, start, end time.Time, limit int) ([]model.Message, error) {
	// 毫秒粒度只做粗筛，精确的窗口和排序交给 recent
	fields, err := r.client.ZRangeByScore(ctx, r.key(chatID, "timeline"), &redis.ZRangeBy{
		Min: strconv.FormatInt(start.UnixMilli(), 10),
		Max: strconv.FormatInt(end.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	if len(fields) == 0 {
		return []model.Message{}, nil
	}

	sortBySeq(fields)
	values, err := r.client.HMGet(ctx, r.key(chatID, "messages"), fields...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackend, err)
	}

	messages := make([]model.Message, 0, len(values))
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		var msg model.Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			logger.Warnf("Skipping corrupt message %s in chat %s: %v", fields[i], chatID, err)
			continue
		}
		messages = append(messages, msg)
	}
	return recent(messages, start, end, limit), nil
}

func (r *RedisStorage) ListMessages(ctx context.Context, chatID string) ([]model.Message, error) {
	entries, err := r.client.HGetAll(ctx, r.key(chatID, "messages")).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	if len(entries) == 0 {
		return nil, ErrChatNotFound
	}

	fields := make([]string, 0, len(entries))
	for field := range entries {
		fields = append(fields, field)
	}
	sortBySeq(fields)

	messages := make([]model.Message, 0, len(fields))
	for _, field := range fields {
		var msg model.Message
		if err := json.Unmarshal([]byte(entries[field]), &msg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func sortBySeq(fields []string) {
	sort.Slice(fields, func(i, j int) bool {
		a, _ := strconv.ParseInt(fields[i], 10, 64)
		b, _ := strconv.ParseInt(fields[j], 10, 64)
		return a < b
	})
}
