// Package title holds the per-game capture geometry and the heuristics that decide
// whether a crop can be trusted before, or instead of, classifying it.
package title

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"

	"github.com/andresmejia3/rotisserie/internal/types"
)

// ErrBadImage is returned when capture bytes cannot be decoded or cropped.
var ErrBadImage = errors.New("unusable capture image")

// ClassifyFunc classifies one crop with the title's model.
type ClassifyFunc func(ctx context.Context, image []byte) types.ClassificationResult

// Strategy is the disambiguation layer for one game.
type Strategy interface {
	Title() types.Title
	// Crop is the region grabbed from the live stream.
	Crop() types.CropSpec
	// Evaluate turns a capture of Crop() into a result, calling classify zero or more times.
	Evaluate(ctx context.Context, capture []byte, classify ClassifyFunc) types.ClassificationResult
}

// For returns the strategy for t.
func For(t types.Title) (Strategy, error) {
	switch t {
	case types.Fortnite:
		return Fortnite{}, nil
	case types.PUBG:
		return PUBG{}, nil
	case types.Blackout:
		return Blackout{}, nil
	}
	return nil, fmt.Errorf("no strategy for title %q", t)
}

// orSentinel reports a zero count as unknown: no live match ends with zero players showing.
func orSentinel(r types.ClassificationResult) types.ClassificationResult {
	if r.Value == 0 {
		r.Value = types.Sentinel
	}
	return r
}

// decode reads capture bytes as an image.
func decode(capture []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(capture))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadImage, err)
	}
	return img, nil
}

// cropPNG cuts spec (relative to img's origin) out of img and re-encodes it as a gray PNG,
// the same pixel format ffmpeg produces for direct crops.
func cropPNG(img image.Image, spec types.CropSpec) ([]byte, error) {
	rect := spec.Rect().Add(img.Bounds().Min)
	if !rect.In(img.Bounds()) {
		return nil, fmt.Errorf("%w: crop %v outside frame %v", ErrBadImage, rect, img.Bounds())
	}

	cropped := imaging.Crop(img, rect)
	gray := image.NewGray(cropped.Bounds())
	draw.Draw(gray, gray.Bounds(), cropped, cropped.Bounds().Min, draw.Src)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, gray, imaging.PNG); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadImage, err)
	}
	return buf.Bytes(), nil
}

// grayAt samples the luminance of the pixel at (x, y) relative to img's origin.
func grayAt(img image.Image, x, y int) float64 {
	origin := img.Bounds().Min
	return float64(color.GrayModel.Convert(img.At(origin.X+x, origin.Y+y)).(color.Gray).Y)
}
