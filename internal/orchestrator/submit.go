package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/andresmejia3/rotisserie/internal/extraction"
	"github.com/andresmejia3/rotisserie/internal/types"
)

// HTTPSubmitter posts captures to a remote extraction service as multipart field "image".
type HTTPSubmitter struct {
	BaseURL string
	Title   types.Title
	Client  *http.Client
}

// NewHTTPSubmitter targets baseURL/process_<title>.
func NewHTTPSubmitter(baseURL string, t types.Title, timeout time.Duration) *HTTPSubmitter {
	return &HTTPSubmitter{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Title:   t,
		Client:  &http.Client{Timeout: timeout},
	}
}

func (h *HTTPSubmitter) Submit(ctx context.Context, image []byte) (types.ClassificationResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", "image.png")
	if err != nil {
		return types.ClassificationResult{}, err
	}
	if _, err := part.Write(image); err != nil {
		return types.ClassificationResult{}, err
	}
	if err := mw.Close(); err != nil {
		return types.ClassificationResult{}, err
	}

	url := fmt.Sprintf("%s/process_%s", h.BaseURL, h.Title)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return types.ClassificationResult{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := h.Client.Do(req)
	if err != nil {
		return types.ClassificationResult{}, fmt.Errorf("post %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return types.ClassificationResult{}, fmt.Errorf("post %s: %s: %s", url, resp.Status, strings.TrimSpace(string(msg)))
	}

	var res types.ClassificationResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return types.ClassificationResult{}, fmt.Errorf("decode response from %s: %w", url, err)
	}
	return res, nil
}

// LocalSubmitter runs the extraction service in-process.
type LocalSubmitter struct {
	Service *extraction.Service
	Title   types.Title
}

func (l LocalSubmitter) Submit(ctx context.Context, image []byte) (types.ClassificationResult, error) {
	res, err := l.Service.Extract(ctx, l.Title, extraction.ImageRequest{Image: image})
	if err != nil {
		return types.ClassificationResult{}, err
	}
	return res.ClassificationResult, nil
}
