package remote

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_GenerateImage(t *testing.T) {
	raw := []byte{0x89, 'P', 'N', 'G'}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/images", r.URL.Path)

		var req imageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "a lighthouse", req.Prompt)
		assert.Equal(t, "img-1", req.ModelID)

		json.NewEncoder(w).Encode(imageResponse{
			Data:        base64.StdEncoding.EncodeToString(raw),
			ContentType: "image/png",
		})
	})

	data, contentType, err := client.Generate(context.Background(), "a lighthouse", "img-1", "1024x1024")
	require.NoError(t, err)
	assert.Equal(t, raw, data)
	assert.Equal(t, "image/png", contentType)
}

func TestClient_GenerateImageMalformedResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "not json")
	})

	_, _, err := client.Generate(context.Background(), "x", "img-1", "")
	require.Error(t, err)
}
