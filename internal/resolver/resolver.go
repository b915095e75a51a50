// Package resolver picks a playable rendition of a live channel.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/andresmejia3/rotisserie/internal/types"
	"github.com/andresmejia3/rotisserie/internal/utils"
)

// ErrNotFound is returned when a channel is offline, unknown, or its lookup failed.
var ErrNotFound = errors.New("stream not found")

// PreferredQualities is tried in order against the advertised renditions.
// Live sources label 720p inconsistently, and 'best'/'source' are last-resort fallbacks.
var PreferredQualities = []string{"720p", "720", "720p60", "720p60_alt", "best", "source"}

// RenditionLister lists the renditions a channel currently advertises, keyed by quality label.
type RenditionLister interface {
	ListRenditions(ctx context.Context, channelURL string) (map[string]string, error)
}

// Resolver maps channel names to stream handles.
type Resolver struct {
	lister RenditionLister
	log    *zap.SugaredLogger
}

// New creates a resolver backed by lister.
func New(lister RenditionLister, log *zap.SugaredLogger) *Resolver {
	return &Resolver{lister: lister, log: log}
}

// Resolve returns the best matching rendition for channel, or ErrNotFound.
func (r *Resolver) Resolve(ctx context.Context, channel string) (types.StreamHandle, error) {
	url := ChannelURL(channel)
	renditions, err := r.lister.ListRenditions(ctx, url)
	if err != nil {
		r.log.Debugw("rendition lookup failed", "channel", channel, "error", err)
		return types.StreamHandle{}, fmt.Errorf("%w: %s: %v", ErrNotFound, channel, err)
	}

	quality, ok := lo.Find(PreferredQualities, func(q string) bool {
		_, exists := renditions[q]
		return exists
	})
	if !ok {
		return types.StreamHandle{}, fmt.Errorf("%w: %s has no usable rendition (got %v)", ErrNotFound, channel, lo.Keys(renditions))
	}
	return types.StreamHandle{URL: renditions[quality], Quality: quality}, nil
}

// ChannelURL expands a bare channel name into a twitch URL.
func ChannelURL(channel string) string {
	if strings.Contains(channel, "://") || strings.Contains(channel, ".") {
		return channel
	}
	return "https://twitch.tv/" + channel
}

// StreamlinkLister asks the streamlink CLI for the channel's renditions.
type StreamlinkLister struct {
	Binary  string
	Token   string // Optional OAuth token passed through to the twitch API
	Timeout time.Duration
}

type streamlinkOutput struct {
	Error   string `json:"error"`
	Streams map[string]struct {
		Type string `json:"type"`
		URL  string `json:"url"`
	} `json:"streams"`
}

// ListRenditions runs `streamlink --json <url>` and parses the advertised streams.
func (l StreamlinkLister) ListRenditions(ctx context.Context, channelURL string) (map[string]string, error) {
	if l.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.Timeout)
		defer cancel()
	}

	cmd := utils.NewSafeCommand(ctx, l.binary(), l.args(channelURL)...)
	out, err := cmd.Output()

	// streamlink prints a JSON error object and exits 1 for offline channels
	var res streamlinkOutput
	if jsonErr := json.Unmarshal(out, &res); jsonErr != nil {
		if err != nil {
			return nil, fmt.Errorf("streamlink failed: %w (%s)", err, cmd.Tail(256))
		}
		return nil, fmt.Errorf("streamlink output malformed: %w", jsonErr)
	}
	if res.Error != "" {
		return nil, errors.New(res.Error)
	}
	if err != nil {
		return nil, fmt.Errorf("streamlink failed: %w", err)
	}

	renditions := make(map[string]string, len(res.Streams))
	for label, s := range res.Streams {
		if s.URL != "" {
			renditions[label] = s.URL
		}
	}
	return renditions, nil
}

func (l StreamlinkLister) binary() string {
	if l.Binary == "" {
		return "streamlink"
	}
	return l.Binary
}

func (l StreamlinkLister) args(channelURL string) []string {
	args := []string{"--json"}
	if l.Token != "" {
		args = append(args, "--twitch-api-header", "Authorization=OAuth "+l.Token)
	}
	return append(args, channelURL)
}
