package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"xhsmarket/internal/model"
)

type Session struct {
	Token     string     `json:"token"`
	User      model.User `json:"user"`
	ExpiresAt time.Time  `json:"expiresAt"`
}

// Login stores the returned token on the client.
func (c *Client) Login(ctx context.Context, email, password string) (Session, error) {
	var s Session
	err := c.Do(ctx, http.MethodPost, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &s)
	if err != nil {
		return Session{}, err
	}
	c.SetToken(s.Token)
	return s, nil
}

func (c *Client) Logout(ctx context.Context) error {
	if err := c.Do(ctx, http.MethodPost, "/auth/logout", nil, nil); err != nil {
		return err
	}
	c.SetToken("")
	return nil
}

type ArtworkQuery struct {
	Category string
	Search   string
	AI       string
	ArtistID string
	Sort     string
	Limit    int
	Offset   int
}

func (q ArtworkQuery) encode() string {
	v := url.Values{}
	set(v, "category", q.Category)
	set(v, "q", q.Search)
	set(v, "ai", q.AI)
	set(v, "artist", q.ArtistID)
	set(v, "sort", q.Sort)
	setInt(v, "limit", q.Limit)
	setInt(v, "offset", q.Offset)
	return v.Encode()
}

type ArtworkPage struct {
	Items []model.Artwork `json:"items"`
	Total int             `json:"total"`
}

func (c *Client) ListArtworks(ctx context.Context, q ArtworkQuery) (ArtworkPage, error) {
	var page ArtworkPage
	err := c.Do(ctx, http.MethodGet, withQuery("/artworks", q.encode()), nil, &page)
	return page, err
}

func (c *Client) GetArtwork(ctx context.Context, id string) (model.Artwork, error) {
	var a model.Artwork
	err := c.Do(ctx, http.MethodGet, "/artworks/"+url.PathEscape(id), nil, &a)
	return a, err
}

type NewArtwork struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	ImageURL    string   `json:"imageUrl,omitempty"`
	Category    string   `json:"category,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	IsAI        bool     `json:"isAI,omitempty"`
	Prompt      string   `json:"prompt,omitempty"`
	Price       int64    `json:"price,omitempty"`
	ForSale     bool     `json:"forSale,omitempty"`
}

func (c *Client) CreateArtwork(ctx context.Context, in NewArtwork) (model.Artwork, error) {
	var a model.Artwork
	err := c.Do(ctx, http.MethodPost, "/artworks", in, &a)
	return a, err
}

type LikeState struct {
	Liked bool `json:"liked"`
	Likes int  `json:"likes"`
}

func (c *Client) ToggleLike(ctx context.Context, id string) (LikeState, error) {
	var s LikeState
	err := c.Do(ctx, http.MethodPost, "/artworks/"+url.PathEscape(id)+"/like", nil, &s)
	return s, err
}

type ProjectQuery struct {
	Status   string
	Category string
	Search   string
	ClientID string
	Sort     string
	Limit    int
	Offset   int
}

func (q ProjectQuery) encode() string {
	v := url.Values{}
	set(v, "status", q.Status)
	set(v, "category", q.Category)
	set(v, "q", q.Search)
	set(v, "client", q.ClientID)
	set(v, "sort", q.Sort)
	setInt(v, "limit", q.Limit)
	setInt(v, "offset", q.Offset)
	return v.Encode()
}

type ProjectPage struct {
	Items []model.Project `json:"items"`
	Total int             `json:"total"`
}

func (c *Client) ListProjects(ctx context.Context, q ProjectQuery) (ProjectPage, error) {
	var page ProjectPage
	err := c.Do(ctx, http.MethodGet, withQuery("/projects", q.encode()), nil, &page)
	return page, err
}

type NewProject struct {
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	BudgetMin   int64     `json:"budgetMin"`
	BudgetMax   int64     `json:"budgetMax"`
	Deadline    time.Time `json:"deadline"`
}

func (c *Client) CreateProject(ctx context.Context, in NewProject) (model.Project, error) {
	var p model.Project
	err := c.Do(ctx, http.MethodPost, "/projects", in, &p)
	return p, err
}

type ImageRequest struct {
	Prompt      string `json:"prompt"`
	Style       string `json:"style,omitempty"`
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type Image struct {
	URL         string `json:"url"`
	Source      string `json:"source"`
	Seed        string `json:"seed"`
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspectRatio"`
}

func (c *Client) GenerateImage(ctx context.Context, in ImageRequest) (Image, error) {
	var img Image
	err := c.Do(ctx, http.MethodPost, "/ai/generate", in, &img)
	return img, err
}

func set(v url.Values, key, value string) {
	if value != "" {
		v.Set(key, value)
	}
}

func setInt(v url.Values, key string, value int) {
	if value > 0 {
		v.Set(key, strconv.Itoa(value))
	}
}

func withQuery(path, query string) string {
	if query == "" {
		return path
	}
	return path + "?" + query
}
