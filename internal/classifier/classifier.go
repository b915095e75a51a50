// Package classifier turns crops into player counts using per-title digit models.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/andresmejia3/rotisserie/internal/debugstore"
	"github.com/andresmejia3/rotisserie/internal/types"
)

// ErrUnparseableLabel marks model output that is not a non-negative integer.
var ErrUnparseableLabel = errors.New("model label is not a player count")

// Model is an opaque, loaded classification graph.
type Model interface {
	Infer(ctx context.Context, image []byte) (label string, probability float64, err error)
}

// Adapter wraps a model as a pure function from image bytes to a result.
type Adapter struct {
	debug *debugstore.Store // nil disables persistence
	log   *zap.SugaredLogger
}

// NewAdapter returns an adapter; pass a nil store to disable debug persistence.
func NewAdapter(debug *debugstore.Store, log *zap.SugaredLogger) *Adapter {
	return &Adapter{debug: debug, log: log}
}

// Classify feeds image to model. Inference failures and non-numeric labels yield the sentinel.
func (a *Adapter) Classify(ctx context.Context, model Model, image []byte) types.ClassificationResult {
	label, prob, err := model.Infer(ctx, image)
	if err != nil {
		a.log.Warnw("inference failed", "error", err)
		return types.Unknown()
	}

	value, err := ParseLabel(label)
	if err != nil {
		a.log.Debugw("substituting sentinel", "label", label, "error", err)
		value = types.Sentinel
	}

	if a.debug != nil {
		path := a.debug.Save(image, value)
		a.log.Infof("Identified image %s as %d with %5.2f%% probability.", path, value, prob*100)
	}
	return types.ClassificationResult{Value: value, Confidence: prob}
}

// ParseLabel converts a raw model label into a player count.
func ParseLabel(label string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(label))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnparseableLabel, label)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: negative %d", ErrUnparseableLabel, n)
	}
	return n, nil
}
