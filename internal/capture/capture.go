// Package capture grabs a single cropped grayscale still from a live stream with ffmpeg.
package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"
	"go.uber.org/zap"

	"github.com/andresmejia3/rotisserie/internal/types"
	"github.com/andresmejia3/rotisserie/internal/utils"
)

// ErrCaptureFailed covers tool crashes, timeouts and empty output.
var ErrCaptureFailed = errors.New("capture failed")

// DefaultTimeout bounds a single frame grab.
const DefaultTimeout = 10 * time.Second

// Extractor spawns one short-lived ffmpeg process per capture.
type Extractor struct {
	Binary  string
	Timeout time.Duration
	log     *zap.SugaredLogger
}

// New returns an extractor using the ffmpeg binary on PATH.
func New(timeout time.Duration, log *zap.SugaredLogger) *Extractor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Extractor{Binary: "ffmpeg", Timeout: timeout, log: log}
}

// Capture decodes one frame of mediaURL, converts it to gray, crops it and returns PNG bytes.
func (e *Extractor) Capture(ctx context.Context, mediaURL string, crop types.CropSpec) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	started := time.Now()
	cmd := utils.NewSafeCommand(ctx, e.Binary, Args(mediaURL, crop)...)
	out, err := cmd.Output()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("%w: timed out after %s", ErrCaptureFailed, e.Timeout)
	}
	if err != nil {
		e.log.Debugw("ffmpeg exited with error", "error", err, "stderr", cmd.Tail(512))
		return nil, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty output", ErrCaptureFailed)
	}

	e.log.Debugw("frame captured", "bytes", len(out), "crop", crop, "took", time.Since(started))
	return out, nil
}

// Args builds the ffmpeg command line for a single cropped gray PNG written to stdout.
// The crop filter output is the only mapped stream, so audio is dropped.
func Args(mediaURL string, crop types.CropSpec) []string {
	return ffmpeg.Input(mediaURL, ffmpeg.KwArgs{"loglevel": "quiet"}).
		Filter("crop", ffmpeg.Args(crop.FilterArgs())).
		Output("pipe:", ffmpeg.KwArgs{
			"f":       "image2pipe",
			"pix_fmt": "gray",
			"vframes": 1,
			"vcodec":  "png",
		}).
		GetArgs()
}
