package model

import "time"

// CategoryAll is the catch-all category used by the gallery filter bar.
const CategoryAll = "All"

type Artwork struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	Artist       string    `json:"artist"`
	ArtistID     string    `json:"artistId"`
	ArtistAvatar string    `json:"artistAvatar,omitempty"`
	ImageURL     string    `json:"imageUrl"`
	Category     string    `json:"category"`
	Tags         []string  `json:"tags"`
	Likes        int       `json:"likes"`
	Views        int       `json:"views"`
	IsAI         bool      `json:"isAI"`
	Prompt       string    `json:"prompt,omitempty"`
	Price        int64     `json:"price"`
	ForSale      bool      `json:"forSale"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (a Artwork) GetID() string { return a.ID }
