package cmd

import (
	"bufio"
	"bytes"
	"os"
	"reflect"
	"strings"
	"testing"

	"github.com/andresmejia3/rotisserie/internal/config"
	"github.com/andresmejia3/rotisserie/internal/feeder"
	"github.com/andresmejia3/rotisserie/internal/types"
)

func loadTestConfig(t *testing.T) {
	t.Helper()
	c, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	Cfg = c
}

func TestValidateExtractFlags(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "crop.png")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpFile.Name())
	tmpFile.Close()

	tmpDir := t.TempDir()

	tests := []struct {
		name    string
		opts    Options
		args    []string
		want    types.Title
		wantErr bool
	}{
		{"Streams", Options{Title: "PUBG"}, []string{"shroud"}, types.PUBG, false},
		{"Image", Options{Title: "blackout", ImagePath: tmpFile.Name()}, nil, types.Blackout, false},
		{"Unknown title", Options{Title: "tetris"}, []string{"shroud"}, "", true},
		{"Nothing to do", Options{Title: "pubg"}, nil, "", true},
		{"Image and streams", Options{Title: "pubg", ImagePath: tmpFile.Name()}, []string{"shroud"}, "", true},
		{"Missing image", Options{Title: "pubg", ImagePath: "nonexistent.png"}, nil, "", true},
		{"Image is directory", Options{Title: "pubg", ImagePath: tmpDir}, nil, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := validateExtractFlags(&tt.opts, tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("validateExtractFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("validateExtractFlags() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidateWorkFlags(t *testing.T) {
	defer func() { workLocal = false }()

	tests := []struct {
		name    string
		local   bool
		workers int
		models  map[types.Title]string
		wantErr bool
	}{
		{"Remote with defaults", false, 4, nil, false},
		{"No workers", false, 0, nil, true},
		{"Local without model", true, 1, nil, true},
		{"Local with model", true, 2, map[types.Title]string{types.PUBG: "/m/pubg.pb"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loadTestConfig(t)
			for k, v := range tt.models {
				Cfg.Models[k] = v
			}
			workLocal = tt.local
			opts := Options{Workers: tt.workers}
			err := validateWorkFlags(&opts)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateWorkFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
			if opts.Remote == tt.local {
				t.Errorf("Remote = %v with --local=%v", opts.Remote, tt.local)
			}
		})
	}
}

func TestPrintRanking(t *testing.T) {
	var buf bytes.Buffer
	printRanking(&buf, nil)
	if !strings.Contains(buf.String(), "No scored streams") {
		t.Errorf("Unexpected empty output %q", buf.String())
	}

	buf.Reset()
	printRanking(&buf, []types.RankedStream{
		{Name: "shroud", Alive: 4, URL: types.PlayerURL("shroud")},
		{Name: "ninja", Alive: types.Sentinel, URL: types.PlayerURL("ninja")},
	})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("Expected header, rule and 2 rows, got %q", buf.String())
	}
	if !strings.Contains(lines[2], "shroud") || !strings.Contains(lines[2], "4") {
		t.Errorf("Unexpected first row %q", lines[2])
	}
	if !strings.Contains(lines[3], "?") {
		t.Errorf("Sentinel score should print as unknown, got %q", lines[3])
	}
}

func TestConfirm(t *testing.T) {
	for in, want := range map[string]bool{"y\n": true, "YES\n": true, "n\n": false, "\n": false, "": false} {
		var out bytes.Buffer
		if got := confirm(bufio.NewReader(strings.NewReader(in)), &out, "Sure?"); got != want {
			t.Errorf("confirm(%q) = %v, want %v", in, got, want)
		}
		if !strings.Contains(out.String(), "Sure? [y/N]") {
			t.Errorf("Prompt not written, got %q", out.String())
		}
	}
}

func TestFeedSource(t *testing.T) {
	loadTestConfig(t)
	Cfg.Whitelist = []string{"a", "b"}
	src, err := feedSource("pubg")
	if err != nil || !reflect.DeepEqual(src, feeder.Static{"a", "b"}) {
		t.Errorf("Expected whitelist fallback, got %v (%v)", src, err)
	}

	Cfg.Twitch.ClientID = "client"
	src, err = feedSource("fortnite")
	if err != nil {
		t.Fatal(err)
	}
	tw, ok := src.(*feeder.Twitch)
	if !ok || tw.GameID != feeder.GameIDs[types.Fortnite] || tw.ClientID != "client" {
		t.Errorf("Expected Twitch source for fortnite, got %#v", src)
	}
	if _, err := feedSource("tetris"); err == nil {
		t.Error("Expected error for unknown title with Twitch discovery")
	}

	Cfg.Channels = []string{"c"}
	src, err = feedSource("pubg")
	if err != nil || !reflect.DeepEqual(src, feeder.Static{"c"}) {
		t.Errorf("Expected channel list to win, got %v (%v)", src, err)
	}
}
