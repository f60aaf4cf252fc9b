package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"pttrelay/internal/core/domain"
)

type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string, timeout time.Duration) *apiClient {
	return &apiClient{
		base: strings.TrimSuffix(base, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

type uploadResult struct {
	Success          bool             `json:"success"`
	Reference        domain.Reference `json:"reference"`
	Size             int64            `json:"size"`
	ProcessingTimeMs int64            `json:"processingTimeMs"`
	Error            string           `json:"error"`
}

type apiError struct {
	Status  int    `json:"-"`
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("relay returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("relay returned %d", e.Status)
}

func decodeError(resp *http.Response) error {
	apiErr := &apiError{Status: resp.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	json.Unmarshal(body, apiErr)
	return apiErr
}

func (c *apiClient) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *apiClient) Status(ctx context.Context) (*domain.RelayStatus, error) {
	var status domain.RelayStatus
	if err := c.getJSON(ctx, "/api/v1/status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *apiClient) Channels(ctx context.Context) ([]domain.ChannelSummary, error) {
	var resp struct {
		Channels []domain.ChannelSummary `json:"channels"`
	}
	if err := c.getJSON(ctx, "/api/v1/channels", &resp); err != nil {
		return nil, err
	}
	return resp.Channels, nil
}

// Upload streams r to the relay as the "audio" multipart field.
func (c *apiClient) Upload(ctx context.Context, filename string, r io.Reader, channelID string) (*uploadResult, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := func() error {
			if channelID != "" {
				if err := mw.WriteField("channelId", channelID); err != nil {
					return err
				}
			}
			part, err := mw.CreateFormFile("audio", filepath.Base(filename))
			if err != nil {
				return err
			}
			if _, err := io.Copy(part, r); err != nil {
				return err
			}
			return mw.Close()
		}()
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/v1/audio", pr)
	if err != nil {
		pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()

	var result uploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("relay returned %d", resp.StatusCode)
	}
	if !result.Success {
		return nil, fmt.Errorf("upload rejected (%d): %s", resp.StatusCode, result.Error)
	}
	return &result, nil
}

// resolveURL turns a reference into a fetchable URL. Absolute URLs are
// used as is, paths are joined to the server, bare names go under the
// audio endpoint.
func (c *apiClient) resolveURL(ref string) string {
	if u, err := url.Parse(ref); err == nil && u.IsAbs() {
		return ref
	}
	if strings.HasPrefix(ref, "/") {
		return c.base + ref
	}
	return c.base + "/api/v1/audio/" + url.PathEscape(ref)
}

// Fetch copies the referenced clip into w and returns the byte count.
func (c *apiClient) Fetch(ctx context.Context, ref string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolveURL(ref), nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, fmt.Errorf("audio %s not found or expired", ref)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, decodeError(resp)
	}
	return io.Copy(w, resp.Body)
}
