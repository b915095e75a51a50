package title

import (
	"context"

	"github.com/andresmejia3/rotisserie/internal/types"
)

// Counts in [BlackoutRetryMin, BlackoutRetryMax] are usually the spectator count shown in
// the primary window, not players remaining.
const (
	BlackoutRetryMin = 1
	BlackoutRetryMax = 6
)

// Blackout captures the whole frame once and classifies sub-crops of that still.
type Blackout struct{}

func (Blackout) Title() types.Title   { return types.Blackout }
func (Blackout) Crop() types.CropSpec { return types.BlackoutFrame }

func (Blackout) Evaluate(ctx context.Context, capture []byte, classify ClassifyFunc) types.ClassificationResult {
	frame, err := decode(capture)
	if err != nil {
		return types.Unknown()
	}

	primary, err := cropPNG(frame, types.BlackoutPrimary)
	if err != nil {
		return types.Unknown()
	}
	res := classify(ctx, primary)

	// One retry only; a second ambiguous read is final.
	if res.Value >= BlackoutRetryMin && res.Value <= BlackoutRetryMax {
		secondary, err := cropPNG(frame, types.BlackoutSecondary)
		if err != nil {
			return types.Unknown()
		}
		res = classify(ctx, secondary)
	}
	return orSentinel(res)
}
