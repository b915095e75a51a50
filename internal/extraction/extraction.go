// Package extraction composes stream resolution, frame capture, per-title heuristics and
// classification into a single players-remaining reading.
package extraction

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/andresmejia3/rotisserie/internal/classifier"
	"github.com/andresmejia3/rotisserie/internal/title"
	"github.com/andresmejia3/rotisserie/internal/types"
)

// Request is either a StreamRequest or an ImageRequest.
type Request interface {
	isRequest()
}

// StreamRequest asks for a live capture of a channel.
type StreamRequest struct {
	Name string
}

// ImageRequest supplies an already captured image. For Blackout it is the full frame,
// for the other titles it is the cropped counter.
type ImageRequest struct {
	Image []byte
}

func (StreamRequest) isRequest() {}
func (ImageRequest) isRequest()  {}

// Result is a classification plus the image it was read from, when one was obtained.
type Result struct {
	types.ClassificationResult
	Image []byte
}

// Resolver finds a playable rendition for a channel.
type Resolver interface {
	Resolve(ctx context.Context, channel string) (types.StreamHandle, error)
}

// Capturer grabs one cropped still from a media URL.
type Capturer interface {
	Capture(ctx context.Context, mediaURL string, crop types.CropSpec) ([]byte, error)
}

// Classifier runs a model over image bytes.
type Classifier interface {
	Classify(ctx context.Context, model classifier.Model, image []byte) types.ClassificationResult
}

// Source resolves a channel and captures a crop from it.
type Source struct {
	Resolver Resolver
	Capturer Capturer
}

// Grab returns the cropped still for channel. Errors wrap resolver.ErrNotFound or capture.ErrCaptureFailed.
func (s Source) Grab(ctx context.Context, channel string, crop types.CropSpec) ([]byte, error) {
	h, err := s.Resolver.Resolve(ctx, channel)
	if err != nil {
		return nil, err
	}
	return s.Capturer.Capture(ctx, h.URL, crop)
}

// Observer is notified of every extraction outcome. Used for metrics.
type Observer func(t types.Title, outcome string, took time.Duration)

// Outcomes reported to the Observer.
const (
	OutcomeOK        = "ok"
	OutcomeUnknown   = "unknown"
	OutcomeNoCapture = "no_capture"
)

// Service is stateless across calls; the registry is shared read-only.
type Service struct {
	source     Source
	classifier Classifier
	registry   *classifier.Registry
	observe    Observer
	log        *zap.SugaredLogger
}

// New builds a service. observe may be nil.
func New(source Source, c Classifier, registry *classifier.Registry, observe Observer, log *zap.SugaredLogger) *Service {
	if observe == nil {
		observe = func(types.Title, string, time.Duration) {}
	}
	return &Service{source: source, classifier: c, registry: registry, observe: observe, log: log}
}

// Supports reports whether a model is loaded for t.
// Healthy reports whether every loaded model's engines are running.
func (s *Service) Healthy() bool { return s.registry.Healthy() }

func (s *Service) Supports(t types.Title) bool {
	_, ok := s.registry.Model(t)
	return ok
}

// Extract reads the players-remaining count for t. Capture and classification failures
// are reported as the sentinel result; an error means the title itself cannot be served.
func (s *Service) Extract(ctx context.Context, t types.Title, req Request) (Result, error) {
	strategy, err := title.For(t)
	if err != nil {
		return Result{}, err
	}
	model, ok := s.registry.Model(t)
	if !ok {
		return Result{}, fmt.Errorf("no model loaded for %s", t)
	}

	started := time.Now()
	var image []byte
	switch r := req.(type) {
	case StreamRequest:
		image, err = s.source.Grab(ctx, r.Name, strategy.Crop())
		if err != nil {
			s.log.Infow("capture unavailable", "title", t, "stream", r.Name, "error", err)
			s.observe(t, OutcomeNoCapture, time.Since(started))
			return Result{ClassificationResult: types.Unknown()}, nil
		}
	case ImageRequest:
		image = r.Image
	default:
		return Result{}, fmt.Errorf("unsupported request %T", req)
	}

	if len(image) == 0 {
		s.observe(t, OutcomeNoCapture, time.Since(started))
		return Result{ClassificationResult: types.Unknown()}, nil
	}

	classify := func(ctx context.Context, img []byte) types.ClassificationResult {
		return s.classifier.Classify(ctx, model, img)
	}
	res := strategy.Evaluate(ctx, image, classify)

	outcome := OutcomeOK
	if res.IsUnknown() {
		outcome = OutcomeUnknown
	}
	s.observe(t, outcome, time.Since(started))
	return Result{ClassificationResult: res, Image: image}, nil
}
