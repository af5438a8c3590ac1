package model

// Creator is a directory card aggregated from a creator account and its artworks.
type Creator struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Avatar       string `json:"avatar"`
	Bio          string `json:"bio,omitempty"`
	Specialty    string `json:"specialty,omitempty"`
	Verified     bool   `json:"verified"`
	Followers    int    `json:"followers"`
	ArtworkCount int    `json:"artworkCount"`
	TotalLikes   int    `json:"totalLikes"`
	TotalViews   int    `json:"totalViews"`
}
