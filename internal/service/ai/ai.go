// Package ai generates artwork images from prompts. Without a model, or
// when the model fails, it answers with a deterministic stock placeholder.
package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"xhsmarket/internal/event"
	"xhsmarket/internal/service"
	"xhsmarket/pkg/circuitbreaker"
	"xhsmarket/pkg/metrics"
	"xhsmarket/pkg/otel"
)

const (
	SourceModel       = "model"
	SourcePlaceholder = "placeholder"

	DefaultAspectRatio = "1:1"
)

var ErrEmptyPrompt = fmt.Errorf("prompt is required: %w", service.ErrInvalidInput)

type size struct{ w, h int }

var aspectSizes = map[string]size{
	"1:1":  {1024, 1024},
	"16:9": {1280, 720},
	"9:16": {720, 1280},
	"4:3":  {1024, 768},
	"3:4":  {768, 1024},
}

// Dimensions maps an aspect ratio to pixel size; unknown ratios are square.
func Dimensions(aspectRatio string) (int, int) {
	s, ok := aspectSizes[aspectRatio]
	if !ok {
		s = aspectSizes[DefaultAspectRatio]
	}
	return s.w, s.h
}

type Request struct {
	Prompt      string `json:"prompt"`
	Style       string `json:"style"`
	AspectRatio string `json:"aspectRatio"`
	UserID      string `json:"-"`
}

type Result struct {
	URL         string `json:"url"`
	Source      string `json:"source"`
	Seed        string `json:"seed"`
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspectRatio"`
}

// Generator renders one image for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt, aspectRatio string) (data []byte, mimeType string, err error)
}

type Options struct {
	Timeout         time.Duration
	PlaceholderBase string
	CacheSize       int
	CacheTTL        time.Duration
}

type Service struct {
	gen       Generator
	breaker   *circuitbreaker.CircuitBreaker
	cache     *expirable.LRU[string, Result]
	publisher event.Publisher
	opts      Options
	logger    *zap.Logger
}

// NewService builds the generator service; gen may be nil.
func NewService(gen Generator, publisher event.Publisher, opts Options, logger *zap.Logger) *Service {
	if opts.CacheSize <= 0 {
		opts.CacheSize = 128
	}
	return &Service{
		gen:       gen,
		breaker:   circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig()),
		cache:     expirable.NewLRU[string, Result](opts.CacheSize, nil, opts.CacheTTL),
		publisher: publisher,
		opts:      opts,
		logger:    logger,
	}
}

// BuildPrompt appends the style to the prompt the way the model expects it.
func BuildPrompt(prompt, style string) string {
	prompt = strings.TrimSpace(prompt)
	style = strings.TrimSpace(style)
	if style == "" || strings.EqualFold(style, "none") {
		return prompt
	}
	return fmt.Sprintf("%s, %s style", prompt, style)
}

// Seed is the placeholder seed for a style and prompt.
func Seed(style, prompt string) string {
	return service.Slug(strings.TrimSpace(style + " " + prompt))
}

func cacheKey(r Request) string {
	return strings.Join([]string{
		strings.ToLower(strings.TrimSpace(r.Prompt)),
		strings.ToLower(strings.TrimSpace(r.Style)),
		r.AspectRatio,
	}, "|")
}

func (s *Service) placeholder(r Request) Result {
	w, h := Dimensions(r.AspectRatio)
	seed := Seed(r.Style, r.Prompt)
	return Result{
		URL:         service.PlaceholderURL(s.opts.PlaceholderBase, seed, w, h),
		Source:      SourcePlaceholder,
		Seed:        seed,
		Prompt:      BuildPrompt(r.Prompt, r.Style),
		AspectRatio: r.AspectRatio,
	}
}

func (s *Service) GenerateImage(ctx context.Context, r Request) (Result, error) {
	if strings.TrimSpace(r.Prompt) == "" {
		return Result{}, ErrEmptyPrompt
	}
	if _, ok := aspectSizes[r.AspectRatio]; !ok {
		r.AspectRatio = DefaultAspectRatio
	}

	ctx, span := otel.StartSpan(ctx, "ai.generate_image")
	defer span.End()
	span.SetAttributes(
		attribute.String("ai.aspect_ratio", r.AspectRatio),
		attribute.String("ai.style", r.Style),
	)

	key := cacheKey(r)
	if res, ok := s.cache.Get(key); ok {
		span.SetAttributes(attribute.Bool("ai.cache_hit", true))
		return res, nil
	}

	res := s.placeholder(r)
	if s.gen != nil {
		modelRes, err := s.callModel(ctx, r)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.logger.Warn("Image model failed, using placeholder",
				zap.String("seed", res.Seed),
				zap.String("breaker", s.breaker.GetState().String()),
				zap.Error(err),
			)
		} else {
			res = modelRes
			s.cache.Add(key, res)
		}
	}

	span.SetAttributes(attribute.String("ai.source", res.Source))
	metrics.IncrementAIGeneration(res.Source)

	if err := s.publisher.PublishWithContext(ctx, event.AIImageGenerated, event.AIImageGeneratedPayload{
		UserID:      r.UserID,
		Prompt:      r.Prompt,
		Style:       r.Style,
		AspectRatio: r.AspectRatio,
		Source:      res.Source,
		OccurredAt:  time.Now().UTC(),
	}); err != nil {
		s.logger.Error("Failed to publish event", zap.String("routing_key", event.AIImageGenerated), zap.Error(err))
	}
	return res, nil
}

func (s *Service) callModel(ctx context.Context, r Request) (Result, error) {
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	prompt := BuildPrompt(r.Prompt, r.Style)
	var data []byte
	var mime string
	start := time.Now()
	err := s.breaker.ExecuteContext(ctx, func(ctx context.Context) error {
		var err error
		data, mime, err = s.gen.Generate(ctx, prompt, r.AspectRatio)
		return err
	})
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordAICallLatency(status, time.Since(start))
	if err != nil {
		return Result{}, err
	}
	if len(data) == 0 {
		return Result{}, fmt.Errorf("model returned no image")
	}
	if mime == "" {
		mime = "image/png"
	}

	return Result{
		URL:         fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data)),
		Source:      SourceModel,
		Seed:        Seed(r.Style, r.Prompt),
		Prompt:      prompt,
		AspectRatio: r.AspectRatio,
	}, nil
}
