package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"xhsmarket/internal/event"
	"xhsmarket/internal/model"
	"xhsmarket/internal/service/asset"
	"xhsmarket/internal/store"
	"xhsmarket/pkg/logger"
	"xhsmarket/pkg/util"
)

// ThumbnailQueue is bound to asset.uploaded.
const ThumbnailQueue = "market.thumbnail.q"

type ThumbnailHandler struct {
	assets *asset.Service
	logger *zap.Logger
}

func NewThumbnailHandler(assets *asset.Service, log *zap.Logger) *ThumbnailHandler {
	return &ThumbnailHandler{assets: assets, logger: log}
}

// HandleAssetUploaded 为图片资产生成缩略图
func (h *ThumbnailHandler) HandleAssetUploaded(ctx context.Context, raw json.RawMessage) error {
	var p event.AssetUploadedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal asset uploaded payload", zap.Error(err))
		return fmt.Errorf("asset.uploaded payload: %v: %w", err, util.ErrPermanent)
	}
	if p.Type != model.AssetTypeImage {
		return nil
	}

	log := logger.WithTrace(ctx, h.logger).With(zap.String("asset_id", p.AssetID))
	a, made, err := h.assets.GenerateThumbnail(ctx, p.AssetID)
	if errors.Is(err, store.ErrNotFound) {
		log.Info("Asset deleted before thumbnailing")
		return nil
	}
	if err != nil {
		log.Error("Failed to generate thumbnail", zap.Error(err))
		return err
	}
	if !made {
		log.Info("Asset is not a decodable image, thumbnail skipped")
		return nil
	}

	log.Debug("Thumbnail stored", zap.String("thumbnail_url", a.ThumbnailURL))
	return nil
}

// Handle 满足 mq.MessageHandler
func (h *ThumbnailHandler) Handle(ctx context.Context, routingKey string, raw json.RawMessage) error {
	if routingKey != event.AssetUploaded {
		return nil
	}
	return h.HandleAssetUploaded(ctx, raw)
}

// Register 在进程内路由上订阅 asset.uploaded
func (h *ThumbnailHandler) Register(r *event.Router) {
	r.Register(event.AssetUploaded, h.HandleAssetUploaded)
}
