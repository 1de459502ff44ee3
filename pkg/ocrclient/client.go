// Package ocrclient is the boundary to the external transfer-image analyzer.
// The analyzer is an AI service that judges whether an image is a payment
// proof and extracts the amount; this package only ships the image and
// interprets the judgment, it performs no recognition itself.
package ocrclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// Result is the analyzer's judgment for one image.
type Result struct {
	IsTransfer bool    `json:"is_transfer"`
	Amount     int64   `json:"amount"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// Usable reports whether the judgment is good enough to act on. A record is
// never auto-committed without this check.
func (r Result) Usable() bool {
	return r.IsTransfer && r.Amount > 0
}

// Client calls the analyzer over HTTP with a bounded timeout. On transport
// failure the caller falls back to asking for manual entry.
type Client struct {
	url  string
	http *http.Client
}

// New builds a client for the analyzer at url. A zero timeout defaults to 20s.
func New(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{url: url, http: &http.Client{Timeout: timeout}}
}

// Analyze posts the image and decodes the judgment. Any transport or decode
// failure is an error; an unusable-but-valid judgment is not.
func (c *Client) Analyze(ctx context.Context, image []byte) (Result, error) {
	var res Result
	if c.url == "" {
		return res, fmt.Errorf("analyzer URL not configured")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "receipt.jpg")
	if err != nil {
		return res, fmt.Errorf("build request: %w", err)
	}
	if _, err := fw.Write(image); err != nil {
		return res, fmt.Errorf("build request: %w", err)
	}
	if err := mw.Close(); err != nil {
		return res, fmt.Errorf("build request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &body)
	if err != nil {
		return res, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return res, fmt.Errorf("call analyzer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return res, fmt.Errorf("analyzer status %d: %s", resp.StatusCode, string(b))
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return res, fmt.Errorf("decode analyzer response: %w", err)
	}
	return res, nil
}
