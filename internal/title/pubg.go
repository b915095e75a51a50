package title

import (
	"context"
	"image"

	"github.com/andresmejia3/rotisserie/internal/types"
)

// Sample points inside the PUBG crop, on the row crossing the "|" divider.
var (
	pubgLeft   = image.Pt(15, 9)
	pubgCenter = image.Pt(16, 9)
	pubgRight  = image.Pt(17, 9)
)

// PUBG guards against the pre-game "XX | Joined" banner.
//
// The crop is sized for "XX | Alive". "Joined" is one character longer, which shifts the
// leftmost digit out of the window, so "96 | Joined" would read as 6. The divider bar shows
// up as a light-dark-light run of pixels; when it is present the lobby has not started and
// the stream cannot be the one with the fewest players left.
type PUBG struct{}

func (PUBG) Title() types.Title   { return types.PUBG }
func (PUBG) Crop() types.CropSpec { return types.PUBGCrop }

func (PUBG) Evaluate(ctx context.Context, capture []byte, classify ClassifyFunc) types.ClassificationResult {
	img, err := decode(capture)
	if err != nil {
		return types.Unknown()
	}

	if inBounds(img, pubgRight) {
		left := grayAt(img, pubgLeft.X, pubgLeft.Y)
		center := grayAt(img, pubgCenter.X, pubgCenter.Y)
		right := grayAt(img, pubgRight.X, pubgRight.Y)
		if DividerBar(left, center, right) {
			return types.Unknown()
		}
	}
	return classify(ctx, capture)
}

// DividerBar reports whether three luminance samples look like a dark vertical line:
// left and right within 10% of each other, center at least 25% darker.
func DividerBar(left, center, right float64) bool {
	return 0.90*right < left && left < 1.10*right && center < 0.75*right
}

func inBounds(img image.Image, p image.Point) bool {
	return p.Add(img.Bounds().Min).In(img.Bounds())
}
