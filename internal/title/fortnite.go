package title

import (
	"context"

	"github.com/andresmejia3/rotisserie/internal/types"
)

// Fortnite classifies its fixed crop directly.
type Fortnite struct{}

func (Fortnite) Title() types.Title   { return types.Fortnite }
func (Fortnite) Crop() types.CropSpec { return types.FortniteCrop }

func (Fortnite) Evaluate(ctx context.Context, capture []byte, classify ClassifyFunc) types.ClassificationResult {
	return orSentinel(classify(ctx, capture))
}
