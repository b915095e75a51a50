package feeder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/samber/lo"

	"github.com/andresmejia3/rotisserie/internal/types"
)

// DefaultTwitchURL is the Helix API root.
const DefaultTwitchURL = "https://api.twitch.tv/helix"

// GameIDs maps each title to its Twitch category id.
var GameIDs = map[types.Title]string{
	types.Fortnite: "33214",
	types.PUBG:     "493057",
	types.Blackout: "504462",
}

// Twitch lists live, non-mature English channels for one game from the Helix streams endpoint.
type Twitch struct {
	BaseURL  string
	ClientID string
	Token    string // app or user access token, sent as a Bearer header
	GameID   string
	Language string
	Limit    int
	Client   *http.Client
}

// NewTwitch returns a source for title. It fails for titles without a known category.
func NewTwitch(baseURL, clientID, token string, title types.Title) (*Twitch, error) {
	id, ok := GameIDs[title]
	if !ok {
		return nil, fmt.Errorf("no twitch category for %q", title)
	}
	if baseURL == "" {
		baseURL = DefaultTwitchURL
	}
	return &Twitch{
		BaseURL:  baseURL,
		ClientID: clientID,
		Token:    token,
		GameID:   id,
		Language: "en",
		Limit:    50,
		Client:   &http.Client{Timeout: 15 * time.Second},
	}, nil
}

type helixStream struct {
	UserLogin string `json:"user_login"`
	Type      string `json:"type"`
	IsMature  bool   `json:"is_mature"`
}

type helixStreams struct {
	Data []helixStream `json:"data"`
}

// Channels returns the logins of the live streams, dropping mature ones.
func (t *Twitch) Channels(ctx context.Context) ([]string, error) {
	q := url.Values{}
	q.Set("game_id", t.GameID)
	q.Set("type", "live")
	if t.Language != "" {
		q.Set("language", t.Language)
	}
	if t.Limit > 0 {
		q.Set("first", strconv.Itoa(t.Limit))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.BaseURL+"/streams?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Client-Id", t.ClientID)
	if t.Token != "" {
		req.Header.Set("Authorization", "Bearer "+t.Token)
	}

	resp, err := t.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("twitch streams: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("twitch streams: unexpected status %s", resp.Status)
	}

	var body helixStreams
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("twitch streams: %w", err)
	}
	return lo.FilterMap(body.Data, func(s helixStream, _ int) (string, bool) {
		return s.UserLogin, s.Type == "live" && !s.IsMature && s.UserLogin != ""
	}), nil
}
