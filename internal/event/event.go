// Package event names the marketplace domain events and the publishers
// services hand them to.
package event

import "time"

// Routing keys on the market.events topic exchange.
const (
	ArtworkCreated       = "artwork.created"
	ArtworkLiked         = "artwork.liked"
	ProjectCreated       = "project.created"
	ProjectApplied       = "project.applied"
	ProjectAssigned      = "project.assigned"
	TaskUpdated          = "task.updated"
	TransactionCompleted = "transaction.completed"
	AssetUploaded        = "asset.uploaded"
	AIImageGenerated     = "ai.image.generated"
)

// NotifyKeys are the events that turn into user notifications.
var NotifyKeys = []string{
	ArtworkLiked,
	ProjectApplied,
	ProjectAssigned,
	TaskUpdated,
	TransactionCompleted,
}

type ArtworkCreatedPayload struct {
	ArtworkID  string    `json:"artwork_id"`
	ArtistID   string    `json:"artist_id"`
	Title      string    `json:"title"`
	IsAI       bool      `json:"is_ai"`
	OccurredAt time.Time `json:"occurred_at"`
}

type ArtworkLikedPayload struct {
	ArtworkID  string    `json:"artwork_id"`
	ArtistID   string    `json:"artist_id"`
	Title      string    `json:"title"`
	UserID     string    `json:"user_id"`
	UserName   string    `json:"user_name"`
	Likes      int       `json:"likes"`
	OccurredAt time.Time `json:"occurred_at"`
}

type ProjectCreatedPayload struct {
	ProjectID  string    `json:"project_id"`
	ClientID   string    `json:"client_id"`
	Title      string    `json:"title"`
	Category   string    `json:"category"`
	OccurredAt time.Time `json:"occurred_at"`
}

type ProjectAppliedPayload struct {
	ProjectID   string    `json:"project_id"`
	ClientID    string    `json:"client_id"`
	Title       string    `json:"title"`
	CreatorID   string    `json:"creator_id"`
	CreatorName string    `json:"creator_name"`
	OccurredAt  time.Time `json:"occurred_at"`
}

type ProjectAssignedPayload struct {
	ProjectID  string    `json:"project_id"`
	ClientID   string    `json:"client_id"`
	ClientName string    `json:"client_name"`
	Title      string    `json:"title"`
	CreatorID  string    `json:"creator_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

type TaskUpdatedPayload struct {
	TaskID     string    `json:"task_id"`
	ProjectID  string    `json:"project_id"`
	Title      string    `json:"title"`
	AssigneeID string    `json:"assignee_id"`
	Status     string    `json:"status"`
	OccurredAt time.Time `json:"occurred_at"`
}

type TransactionCompletedPayload struct {
	PurchaseID string    `json:"purchase_id"`
	ArtworkID  string    `json:"artwork_id"`
	Title      string    `json:"title"`
	BuyerID    string    `json:"buyer_id"`
	SellerID   string    `json:"seller_id"`
	Price      int64     `json:"price"`
	Commission int64     `json:"commission"`
	Currency   string    `json:"currency"`
	OccurredAt time.Time `json:"occurred_at"`
}

type AssetUploadedPayload struct {
	AssetID    string    `json:"asset_id"`
	OwnerID    string    `json:"owner_id"`
	Type       string    `json:"type"`
	MimeType   string    `json:"mime_type"`
	OccurredAt time.Time `json:"occurred_at"`
}

type AIImageGeneratedPayload struct {
	UserID      string    `json:"user_id,omitempty"`
	Prompt      string    `json:"prompt"`
	Style       string    `json:"style"`
	AspectRatio string    `json:"aspect_ratio"`
	Source      string    `json:"source"`
	OccurredAt  time.Time `json:"occurred_at"`
}
