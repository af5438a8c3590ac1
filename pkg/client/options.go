package client

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Mode selects where requests are served.
type Mode string

const (
	// ModeMock serves requests through an in-process http.Handler.
	ModeMock Mode = "mock"
	// ModeRemote sends requests over the network to BaseURL.
	ModeRemote Mode = "remote"
)

const DefaultBaseURL = "http://localhost:3001/api"

type Options struct {
	Mode    Mode
	BaseURL string
	// Handler serves mock mode requests.
	Handler http.Handler
	// Latency is slept before every mock request.
	Latency    time.Duration
	Token      string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

func (o *Options) withDefaults() {
	if o.Mode == "" {
		o.Mode = ModeRemote
	}
	if o.BaseURL == "" {
		o.BaseURL = DefaultBaseURL
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}
