package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/archonhq/archon/errors"
)

type imageRequest struct {
	Prompt  string `json:"prompt"`
	ModelID string `json:"model_id"`
	Size    string `json:"size,omitempty"`
}

type imageResponse struct {
	Data        string `json:"data"` // base64-encoded image bytes
	ContentType string `json:"content_type"`
}

// Generate asks the streaming service for a single image. The response body
// carries the image base64-encoded; callers get the raw bytes.
func (c *Client) Generate(ctx context.Context, prompt, modelID, size string) ([]byte, string, error) {
	body, err := json.Marshal(imageRequest{Prompt: prompt, ModelID: modelID, Size: size})
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to marshal image request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint+"/v1/images", bytes.NewReader(body))
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to create image request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, "", errors.Wrap(err, "image request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, "", errors.Newf("image request returned status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var imgResp imageResponse
	if err := json.NewDecoder(resp.Body).Decode(&imgResp); err != nil {
		return nil, "", errors.Wrap(err, "failed to decode image response")
	}
	data, err := base64.StdEncoding.DecodeString(imgResp.Data)
	if err != nil {
		return nil, "", errors.Wrap(err, "image payload is not valid base64")
	}
	return data, imgResp.ContentType, nil
}
