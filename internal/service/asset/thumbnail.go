package asset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"xhsmarket/internal/blob"
	"xhsmarket/internal/model"
	"xhsmarket/pkg/util"
)

const (
	thumbMaxEdge = 300
	thumbQuality = 60
)

func ThumbnailKey(assetID string) string {
	return fmt.Sprintf("thumbnails/%s.jpg", assetID)
}

// MakeThumbnail decodes an image and re-encodes it as a JPEG whose longer
// edge is at most 300px.
func MakeThumbnail(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	var out image.Image = img
	if w > thumbMaxEdge || h > thumbMaxEdge {
		if w >= h {
			out = imaging.Resize(img, thumbMaxEdge, 0, imaging.Lanczos)
		} else {
			out = imaging.Resize(img, 0, thumbMaxEdge, imaging.Lanczos)
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: thumbQuality}); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// GenerateThumbnail renders and stores the thumbnail of an image asset.
// It reports false for assets that are not decodable images.
func (s *Service) GenerateThumbnail(ctx context.Context, id string) (model.Asset, bool, error) {
	a, err := s.assets.Get(ctx, id)
	if err != nil {
		return model.Asset{}, false, err
	}
	if a.Type != model.AssetTypeImage || a.ObjectKey == "" {
		return a, false, nil
	}

	rc, _, err := s.blobs.Get(ctx, a.ObjectKey)
	if errors.Is(err, blob.ErrNotFound) {
		return a, false, fmt.Errorf("asset %s object missing: %w", id, util.ErrPermanent)
	}
	if err != nil {
		return a, false, err
	}
	defer rc.Close()

	var src bytes.Buffer
	if _, err := src.ReadFrom(rc); err != nil {
		return a, false, fmt.Errorf("read asset %s: %w", id, err)
	}

	thumb, err := MakeThumbnail(src.Bytes())
	if err != nil {
		s.logger.Info("Skipping thumbnail for undecodable image",
			zap.String("asset_id", id),
			zap.String("mime", a.MimeType),
			zap.Error(err),
		)
		return a, false, nil
	}

	key := ThumbnailKey(id)
	if err := s.blobs.Put(ctx, key, bytes.NewReader(thumb), int64(len(thumb)), "image/jpeg"); err != nil {
		return a, false, fmt.Errorf("store thumbnail: %w", err)
	}

	thumbURL := s.blobs.URL(key)
	a, err = s.assets.Update(ctx, id, func(a *model.Asset) error {
		a.ThumbnailURL = thumbURL
		return nil
	})
	if err != nil {
		return model.Asset{}, false, err
	}

	s.logger.Info("Thumbnail generated", zap.String("asset_id", id), zap.Int("bytes", len(thumb)))
	return a, true, nil
}
