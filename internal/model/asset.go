package model

import "time"

const (
	AssetTypeImage    = "image"
	AssetTypeVideo    = "video"
	AssetTypeAudio    = "audio"
	AssetTypeDocument = "document"
	AssetTypeModel    = "model"
	AssetTypeOther    = "other"
)

// Asset is a file in the enterprise DAM library.
type Asset struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"ownerId"`
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	MimeType     string    `json:"mimeType"`
	Folder       string    `json:"folder"`
	Size         int64     `json:"size"`
	SizeLabel    string    `json:"sizeLabel"`
	URL          string    `json:"url"`
	ThumbnailURL string    `json:"thumbnailUrl,omitempty"`
	Tags         []string  `json:"tags"`
	ObjectKey    string    `json:"objectKey,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (a Asset) GetID() string { return a.ID }
