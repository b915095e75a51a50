package types

import (
	"fmt"
	"image"
	"strconv"
	"strings"
)

// Sentinel is the impossible-high player count reported when a capture cannot be read.
// It sorts ambiguous streams to the bottom of the players-remaining ranking.
const Sentinel = 100

// Title identifies a supported game.
type Title string

const (
	Fortnite Title = "fortnite"
	PUBG     Title = "pubg"
	Blackout Title = "blackout"
)

// Titles lists every supported game in route order.
var Titles = []Title{Fortnite, PUBG, Blackout}

// ParseTitle normalizes a user supplied game name.
func ParseTitle(s string) (Title, error) {
	t := Title(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Titles {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown title %q (available: %v)", s, Titles)
}

// StreamHandle is a resolved rendition of a live channel. It lives for one extraction attempt.
type StreamHandle struct {
	URL     string
	Quality string
}

// CropSpec is a rectangle in source pixel coordinates.
type CropSpec struct {
	X, Y, W, H int
}

// Rect converts the crop into an image.Rectangle.
func (c CropSpec) Rect() image.Rectangle {
	return image.Rect(c.X, c.Y, c.X+c.W, c.Y+c.H)
}

// FilterArgs renders the crop as positional ffmpeg crop filter arguments (w, h, x, y).
func (c CropSpec) FilterArgs() []string {
	return []string{strconv.Itoa(c.W), strconv.Itoa(c.H), strconv.Itoa(c.X), strconv.Itoa(c.Y)}
}

// Crop geometry per title, measured on a 1280x720 rendition.
var (
	FortniteCrop = CropSpec{X: 1188, Y: 204, W: 22, H: 18}
	PUBGCrop     = CropSpec{X: 1191, Y: 22, W: 23, H: 21}

	// PUBGWorkerCrop is the slightly wider window used by queue workers.
	PUBGWorkerCrop = CropSpec{X: 1190, Y: 20, W: 22, H: 22}

	BlackoutFrame     = CropSpec{X: 0, Y: 0, W: 1280, H: 720}
	BlackoutPrimary   = CropSpec{X: 1226, Y: 32, W: 26, H: 18}
	BlackoutSecondary = CropSpec{X: 1170, Y: 32, W: 26, H: 18}
)

// ClassificationResult is the outcome of one extraction.
type ClassificationResult struct {
	Value      int     `json:"number"`
	Confidence float64 `json:"probability"`
}

// Unknown is the result reported when extraction is invalid or inconclusive.
func Unknown() ClassificationResult {
	return ClassificationResult{Value: Sentinel, Confidence: 0}
}

// IsUnknown reports whether r carries the sentinel value.
func (r ClassificationResult) IsUnknown() bool {
	return r.Value == Sentinel
}

// RankedStream is one entry of the result set, ordered by ascending score.
type RankedStream struct {
	Name  string  `json:"stream_name"`
	Alive float64 `json:"alive"`
	URL   string  `json:"stream_url"`
}

// PlayerURL returns the embeddable player link for a channel.
func PlayerURL(name string) string {
	return "https://player.twitch.tv/?channel=" + name
}
