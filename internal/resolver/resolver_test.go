package resolver

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

// fakeLister serves renditions from an in-memory directory of channels.
type fakeLister struct {
	channels map[string]map[string]string
	err      error
}

func (f fakeLister) ListRenditions(_ context.Context, url string) (map[string]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.channels[url], nil
}

func TestResolvePreferenceOrder(t *testing.T) {
	lister := fakeLister{channels: map[string]map[string]string{
		"https://twitch.tv/alpha": {"160p": "a160", "best": "abest", "720p60": "a720p60"},
		"https://twitch.tv/beta":  {"source": "bsource", "720": "b720", "720p": "b720p"},
		"https://twitch.tv/gamma": {"source": "gsource", "480p": "g480"},
	}}
	r := New(lister, zap.NewNop().Sugar())

	tests := []struct {
		channel     string
		wantURL     string
		wantQuality string
	}{
		{"alpha", "a720p60", "720p60"},
		{"beta", "b720p", "720p"},
		{"gamma", "gsource", "source"},
	}

	for _, tt := range tests {
		t.Run(tt.channel, func(t *testing.T) {
			h, err := r.Resolve(context.Background(), tt.channel)
			if err != nil {
				t.Fatalf("Resolve(%q) failed: %v", tt.channel, err)
			}
			if h.URL != tt.wantURL || h.Quality != tt.wantQuality {
				t.Errorf("Resolve(%q) = %+v, want url=%s quality=%s", tt.channel, h, tt.wantURL, tt.wantQuality)
			}
		})
	}
}

func TestResolveNotFound(t *testing.T) {
	tests := []struct {
		name   string
		lister fakeLister
	}{
		{"Channel not listed", fakeLister{channels: map[string]map[string]string{}}},
		{"Only unusable renditions", fakeLister{channels: map[string]map[string]string{
			"https://twitch.tv/offline": {"audio_only": "x", "160p": "y"},
		}}},
		{"Lookup error", fakeLister{err: errors.New("network down")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(tt.lister, zap.NewNop().Sugar())
			_, err := r.Resolve(context.Background(), "offline")
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("Expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestChannelURL(t *testing.T) {
	tests := map[string]string{
		"shroud":                    "https://twitch.tv/shroud",
		"twitch.tv/shroud":          "twitch.tv/shroud",
		"https://twitch.tv/ninja":   "https://twitch.tv/ninja",
		"rtmp://example.com/stream": "rtmp://example.com/stream",
	}
	for in, want := range tests {
		if got := ChannelURL(in); got != want {
			t.Errorf("ChannelURL(%q) = %q, want %q", in, got, want)
		}
	}
}

// writeScript drops an executable shell script standing in for streamlink.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "streamlink")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestStreamlinkLister(t *testing.T) {
	t.Run("Parses streams", func(t *testing.T) {
		bin := writeScript(t, `echo '{"plugin":"twitch","streams":{"720p":{"type":"hls","url":"https://cdn/720.m3u8"},"best":{"type":"hls","url":"https://cdn/best.m3u8"}}}'`)
		got, err := StreamlinkLister{Binary: bin, Timeout: 5 * time.Second}.ListRenditions(context.Background(), "https://twitch.tv/x")
		if err != nil {
			t.Fatalf("ListRenditions failed: %v", err)
		}
		if got["720p"] != "https://cdn/720.m3u8" || got["best"] != "https://cdn/best.m3u8" {
			t.Errorf("Unexpected renditions: %v", got)
		}
	})

	t.Run("Offline channel", func(t *testing.T) {
		bin := writeScript(t, `echo '{"error":"No playable streams found on this URL"}'; exit 1`)
		_, err := StreamlinkLister{Binary: bin}.ListRenditions(context.Background(), "https://twitch.tv/x")
		if err == nil {
			t.Fatal("Expected error for offline channel")
		}
	})

	t.Run("Garbage output", func(t *testing.T) {
		bin := writeScript(t, `echo 'Traceback (most recent call last):' >&2; exit 2`)
		_, err := StreamlinkLister{Binary: bin}.ListRenditions(context.Background(), "https://twitch.tv/x")
		if err == nil {
			t.Fatal("Expected error for crashed streamlink")
		}
	})

	t.Run("Token is passed through", func(t *testing.T) {
		args := StreamlinkLister{Token: "abc"}.args("https://twitch.tv/x")
		want := []string{"--json", "--twitch-api-header", "Authorization=OAuth abc", "https://twitch.tv/x"}
		if len(args) != len(want) {
			t.Fatalf("args = %v, want %v", args, want)
		}
		for i := range want {
			if args[i] != want[i] {
				t.Errorf("args[%d] = %q, want %q", i, args[i], want[i])
			}
		}
	})
}
