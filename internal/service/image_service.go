package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"artjournal-backend/internal/config"
	"artjournal-backend/internal/imagedata"
	"artjournal-backend/internal/imagegen"
	"artjournal-backend/internal/metrics"
	"artjournal-backend/internal/model"
	"artjournal-backend/internal/modelconfig"
	"artjournal-backend/internal/recall"
	"artjournal-backend/internal/storage"
	"artjournal-backend/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/semaphore"
)

// ClientSource 按 format 返回生图客户端，由 imagegen.Registry 实现
type ClientSource interface {
	Get(format string) (imagegen.Client, error)
}

// ImageSender 把图片发到聊天里，返回记录下的消息 ID
type ImageSender interface {
	SendImage(ctx context.Context, chatID, imageBase64 string) (string, error)
}

// RecallScheduler 由 recall.Scheduler 实现
type RecallScheduler interface {
	Schedule(chatID string, delay time.Duration, logPrefix string) *recall.Handle
	CancelChat(chatID string) int
}

type Deps struct {
	Settings     config.Getter
	DefaultModel string
	Clients      ClientSource
	Images       *imagedata.Resolver
	Sender       ImageSender
	Recalls      RecallScheduler
	Store        storage.Store
	Metrics      *metrics.Metrics
	// MaxConcurrent 同时进行的生图请求上限，<=0 表示不限
	MaxConcurrent int64
}

type ImageService struct {
	settings     config.Getter
	defaultModel string
	clients      ClientSource
	images       *imagedata.Resolver
	sender       ImageSender
	recalls      RecallScheduler
	store        storage.Store
	metrics      *metrics.Metrics
	sem          *semaphore.Weighted
}

func NewImageService(deps Deps) *ImageService {
	s := &ImageService{
		settings:     deps.Settings,
		defaultModel: deps.DefaultModel,
		clients:      deps.Clients,
		images:       deps.Images,
		sender:       deps.Sender,
		recalls:      deps.Recalls,
		store:        deps.Store,
		metrics:      deps.Metrics,
	}
	if deps.MaxConcurrent > 0 {
		s.sem = semaphore.NewWeighted(deps.MaxConcurrent)
	}
	return s
}

// NewStore 按配置创建消息存储，磁盘存储初始化失败时退回内存存储
func NewStore(cfg config.StorageConfig) storage.Store {
	var store storage.Store

	switch cfg.Type {
	case "disk":
		store = storage.NewDiskStorage(cfg.DataDir, cfg.CacheSize)
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		store = storage.NewRedisStorage(client, cfg.Redis.KeyPrefix, cfg.Redis.TTL)
	default:
		store = storage.NewMemoryStorage()
	}

	if err := store.Init(); err != nil {
		logger.Errorf("Failed to initialize storage: %v", err)
		_ = store.Close()
		store = storage.NewMemoryStorage()
		_ = store.Init()
	}
	return store
}

// Generate 执行一次完整的生图流程。业务失败以 Success=false 的响应返回，
// 只有调用方式本身有误（缺少参数、上下文取消）时才返回 error。
func (s *ImageService) Generate(ctx context.Context, req *model.GenerateRequest) (*model.GenerateResponse, error) {
	if req == nil || req.ChatID == "" || req.Prompt == "" {
		return nil, ErrInvalidRequest
	}

	requestID := uuid.New().String()
	logPrefix := fmt.Sprintf("[ImageGen %s]", requestID[:8])
	resp := &model.GenerateResponse{RequestID: requestID}

	cfg, ok := modelconfig.Resolve(s.settings, req.ModelID, s.defaultModel, logPrefix)
	if !ok {
		return s.fail(resp, imagegen.ErrConfigurationMissing, logPrefix), nil
	}
	cfg = modelconfig.MergeNegativePrompt(cfg, req.NegativePrompt)
	size := modelconfig.EffectiveSize(cfg, req.Size)
	cfg = modelconfig.InjectOriginalSize(cfg, size)
	resp.Model = cfg.Model
	resp.Format = cfg.Format

	inputImage := ""
	if req.InputImage != "" {
		if !cfg.SupportImg2Img {
			return s.fail(resp, imagegen.ErrImg2ImgUnsupported, logPrefix), nil
		}
		data, err := s.images.Resolve(ctx, req.InputImage)
		if err != nil {
			resp.Message = "输入图片获取失败"
			logger.Warnf("%s 输入图片解析失败: %v", logPrefix, err)
			return resp, nil
		}
		inputImage = data
	}

	client, err := s.clients.Get(cfg.Format)
	if err != nil {
		return s.fail(resp, err, logPrefix), nil
	}

	if s.sem != nil {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer s.sem.Release(1)
	}

	done := s.metrics.Track()
	start := time.Now()
	payload, err := client.Generate(ctx, &imagegen.Request{
		Prompt:     req.Prompt,
		Config:     cfg,
		Size:       size,
		Strength:   req.Strength,
		InputImage: inputImage,
	})
	done()
	if err != nil {
		s.metrics.ObserveGeneration(cfg.Format, outcome(err), time.Since(start))
		return s.fail(resp, err, logPrefix), nil
	}
	s.metrics.ObserveGeneration(cfg.Format, "success", time.Since(start))
	s.metrics.ObservePayload(payload.Kind.String(), payload.Strategy)

	imageBase64, err := s.images.ResolvePayload(ctx, payload)
	if err != nil {
		resp.Message = "图片下载失败"
		logger.Warnf("%s %v", logPrefix, err)
		return resp, nil
	}
	resp.Success = true
	resp.ImageBase64 = imageBase64
	logger.WithFields(logger.Fields{
		"request_id": requestID,
		"format":     cfg.Format,
		"kind":       payload.Kind.String(),
		"strategy":   payload.Strategy,
	}).Info("生图成功")

	if !req.Send || s.sender == nil {
		return resp, nil
	}

	messageID, err := s.sender.SendImage(ctx, req.ChatID, imageBase64)
	if err != nil {
		logger.Errorf("%s 图片发送失败: %v", logPrefix, err)
		resp.Message = "图片已生成，但发送失败"
		return resp, nil
	}
	resp.MessageID = messageID

	if cfg.AutoRecallDelay > 0 && s.recalls != nil {
		s.recalls.Schedule(req.ChatID, time.Duration(cfg.AutoRecallDelay)*time.Second, logPrefix)
		resp.RecallScheduled = true
	}
	return resp, nil
}

func (s *ImageService) fail(resp *model.GenerateResponse, err error, logPrefix string) *model.GenerateResponse {
	logger.Warnf("%s 生图失败: %v", logPrefix, err)
	resp.Success = false
	resp.Message = imagegen.UserMessage(err)
	return resp
}

// ChatMessages 返回聊天中已记录的消息
func (s *ImageService) ChatMessages(ctx context.Context, chatID string) ([]model.Message, error) {
	messages, err := s.store.ListMessages(ctx, chatID)
	if err != nil {
		if errors.Is(err, storage.ErrChatNotFound) {
			return []model.Message{}, nil
		}
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	return messages, nil
}

// CancelRecalls 取消聊天中所有未执行的撤回，返回取消数量
func (s *ImageService) CancelRecalls(chatID string) int {
	if s.recalls == nil {
		return 0
	}
	return s.recalls.CancelChat(chatID)
}

func outcome(err error) string {
	var statusErr *imagegen.StatusError
	switch {
	case errors.As(err, &statusErr):
		return "http_error"
	case errors.Is(err, imagegen.ErrTransport):
		return "transport_error"
	case errors.Is(err, imagegen.ErrEmptyContent):
		return "empty_content"
	case errors.Is(err, imagegen.ErrNoImage):
		return "no_image"
	case errors.Is(err, imagegen.ErrImg2ImgUnsupported):
		return "img2img_unsupported"
	default:
		return "error"
	}
}
