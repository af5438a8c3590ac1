// Package asset is the enterprise digital asset library.
package asset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"xhsmarket/internal/blob"
	"xhsmarket/internal/event"
	"xhsmarket/internal/model"
	"xhsmarket/internal/service"
	"xhsmarket/internal/store"
	"xhsmarket/pkg/rbac"
)

const DefaultFolder = "Uncategorized"

type Filter struct {
	OwnerID string
	Folder  string
	Type    string
	Tag     string
	Search  string
}

type UploadInput struct {
	Name   string
	Folder string
	Tags   []string
	Reader io.Reader
}

type UpdateInput struct {
	Name   *string   `json:"name"`
	Folder *string   `json:"folder"`
	Tags   *[]string `json:"tags"`
}

type FolderCount struct {
	Folder string `json:"folder"`
	Count  int    `json:"count"`
}

type Service struct {
	assets    store.Table[model.Asset]
	blobs     blob.Store
	publisher event.Publisher
	maxBytes  int64
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(st *store.Store, blobs blob.Store, publisher event.Publisher, maxBytes int64, logger *zap.Logger) *Service {
	return &Service{
		assets:    st.Assets,
		blobs:     blobs,
		publisher: publisher,
		maxBytes:  maxBytes,
		logger:    logger,
		now:       time.Now,
	}
}

func (f Filter) Matches(a model.Asset) bool {
	if f.OwnerID != "" && a.OwnerID != f.OwnerID {
		return false
	}
	if f.Folder != "" && a.Folder != f.Folder {
		return false
	}
	if f.Type != "" && a.Type != f.Type {
		return false
	}
	if f.Tag != "" {
		found := false
		for _, t := range a.Tags {
			if strings.EqualFold(t, f.Tag) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		return strings.Contains(strings.ToLower(a.Name), q)
	}
	return true
}

// List returns matching assets, newest first.
func (s *Service) List(ctx context.Context, f Filter) ([]model.Asset, error) {
	items, err := store.Filter(ctx, s.assets, f.Matches)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return items, nil
}

// Get returns an asset the actor may see.
func (s *Service) Get(ctx context.Context, actor service.Actor, id string) (model.Asset, error) {
	a, err := s.assets.Get(ctx, id)
	if err != nil {
		return model.Asset{}, err
	}
	if !actor.CanManage(a.OwnerID) {
		return model.Asset{}, service.Forbidden("asset belongs to another account")
	}
	return a, nil
}

// Folders counts the owner's assets per folder, sorted by name.
func (s *Service) Folders(ctx context.Context, ownerID string) ([]FolderCount, error) {
	items, err := s.List(ctx, Filter{OwnerID: ownerID})
	if err != nil {
		return nil, err
	}
	counts := map[string]int{}
	for _, a := range items {
		counts[a.Folder]++
	}
	out := make([]FolderCount, 0, len(counts))
	for folder, n := range counts {
		out = append(out, FolderCount{Folder: folder, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Folder < out[j].Folder })
	return out, nil
}

// Classify maps a detected MIME type and file name onto an asset type.
func Classify(mime, name string) string {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return model.AssetTypeImage
	case strings.HasPrefix(mime, "video/"):
		return model.AssetTypeVideo
	case strings.HasPrefix(mime, "audio/"):
		return model.AssetTypeAudio
	case strings.HasPrefix(mime, "model/"):
		return model.AssetTypeModel
	case strings.HasPrefix(mime, "text/"),
		mime == "application/pdf",
		mime == "application/rtf",
		strings.Contains(mime, "officedocument"),
		strings.Contains(mime, "msword"),
		strings.Contains(mime, "opendocument"):
		return model.AssetTypeDocument
	}
	switch strings.ToLower(path.Ext(name)) {
	case ".glb", ".gltf", ".obj", ".fbx", ".stl", ".blend":
		return model.AssetTypeModel
	}
	return model.AssetTypeOther
}

func ObjectKey(ownerID, assetID, name string) string {
	return fmt.Sprintf("assets/%s/%s/%s", ownerID, assetID, path.Base(name))
}

func (s *Service) Upload(ctx context.Context, actor service.Actor, in UploadInput) (model.Asset, error) {
	if err := actor.Require(rbac.PermissionManageAssets); err != nil {
		return model.Asset{}, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" || name == "." || name == "/" {
		return model.Asset{}, service.Invalid("file name is required")
	}
	if in.Reader == nil {
		return model.Asset{}, service.Invalid("file content is required")
	}

	data, err := io.ReadAll(io.LimitReader(in.Reader, s.maxBytes+1))
	if err != nil {
		return model.Asset{}, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return model.Asset{}, service.Invalid("file exceeds %s", humanize.Bytes(uint64(s.maxBytes)))
	}
	if len(data) == 0 {
		return model.Asset{}, service.Invalid("file is empty")
	}

	mt := mimetype.Detect(data)
	mime := mt.String()
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}

	folder := strings.TrimSpace(in.Folder)
	if folder == "" {
		folder = DefaultFolder
	}

	id := service.NewID()
	key := ObjectKey(actor.UserID, id, name)
	if err := s.blobs.Put(ctx, key, bytes.NewReader(data), int64(len(data)), mime); err != nil {
		return model.Asset{}, fmt.Errorf("store asset: %w", err)
	}

	a := model.Asset{
		ID:        id,
		OwnerID:   actor.UserID,
		Name:      path.Base(name),
		Type:      Classify(mime, name),
		MimeType:  mime,
		Folder:    folder,
		Size:      int64(len(data)),
		SizeLabel: humanize.Bytes(uint64(len(data))),
		URL:       s.blobs.URL(key),
		Tags:      cleanTags(in.Tags),
		ObjectKey: key,
		CreatedAt: s.now().UTC(),
	}
	if err := s.assets.Put(ctx, a); err != nil {
		return model.Asset{}, err
	}

	if err := s.publisher.PublishWithContext(ctx, event.AssetUploaded, event.AssetUploadedPayload{
		AssetID:    a.ID,
		OwnerID:    a.OwnerID,
		Type:       a.Type,
		MimeType:   a.MimeType,
		OccurredAt: a.CreatedAt,
	}); err != nil {
		s.logger.Error("Failed to publish event", zap.String("routing_key", event.AssetUploaded), zap.Error(err))
	}

	s.logger.Info("Asset uploaded",
		zap.String("asset_id", a.ID),
		zap.String("owner_id", a.OwnerID),
		zap.String("mime", mime),
		zap.String("size", a.SizeLabel),
	)
	return a, nil
}

func (s *Service) Update(ctx context.Context, actor service.Actor, id string, in UpdateInput) (model.Asset, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return model.Asset{}, err
	}
	var name string
	if in.Name != nil {
		name = strings.TrimSpace(*in.Name)
		if name == "" {
			return model.Asset{}, service.Invalid("name is required")
		}
	}
	return s.assets.Update(ctx, id, func(a *model.Asset) error {
		if in.Name != nil {
			a.Name = name
		}
		if in.Folder != nil {
			a.Folder = strings.TrimSpace(*in.Folder)
			if a.Folder == "" {
				a.Folder = DefaultFolder
			}
		}
		if in.Tags != nil {
			a.Tags = cleanTags(*in.Tags)
		}
		return nil
	})
}

// Delete removes the record and its stored objects.
func (s *Service) Delete(ctx context.Context, actor service.Actor, id string) error {
	a, err := s.Get(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.assets.Delete(ctx, id); err != nil {
		return err
	}
	for _, key := range []string{a.ObjectKey, ThumbnailKey(a.ID)} {
		if key == "" {
			continue
		}
		if err := s.blobs.Delete(ctx, key); err != nil && !errors.Is(err, blob.ErrNotFound) {
			s.logger.Warn("Failed to delete asset object", zap.String("key", key), zap.Error(err))
		}
	}
	return nil
}

// Open streams the original file. Fixture assets without a stored object
// return ErrNotFound.
func (s *Service) Open(ctx context.Context, actor service.Actor, id string) (model.Asset, io.ReadCloser, error) {
	a, err := s.Get(ctx, actor, id)
	if err != nil {
		return model.Asset{}, nil, err
	}
	if a.ObjectKey == "" {
		return model.Asset{}, nil, store.NotFound("asset object", id)
	}
	rc, _, err := s.blobs.Get(ctx, a.ObjectKey)
	if errors.Is(err, blob.ErrNotFound) {
		return model.Asset{}, nil, store.NotFound("asset object", id)
	}
	if err != nil {
		return model.Asset{}, nil, err
	}
	return a, rc, nil
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
