package httpclient

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateURLBlocksPrivate(t *testing.T) {
	c := NewSaferClient(5 * time.Second)

	cases := []struct {
		url     string
		wantErr bool
	}{
		{"https://example.com/webhook", false},
		{"http://localhost/hook", true},
		{"http://127.0.0.1:8080/hook", true},
		{"http://192.168.1.5/hook", true},
		{"http://169.254.169.254/latest/meta-data", true},
		{"ftp://example.com/file", true},
		{"http://evil.com@localhost/", true},
	}

	for _, tc := range cases {
		_, err := c.ValidateURL(tc.url)
		if tc.wantErr {
			assert.Error(t, err, "url %s should be blocked", tc.url)
		} else {
			assert.NoError(t, err, "url %s should be allowed", tc.url)
		}
	}
}

func TestIsPrivateIP(t *testing.T) {
	private := []string{"10.1.2.3", "172.16.0.1", "192.168.0.1", "127.0.0.1", "::1", "fc00::1"}
	for _, s := range private {
		ip := net.ParseIP(s)
		require.NotNil(t, ip)
		assert.True(t, isPrivateIP(ip), "%s should be private", s)
	}

	public := []string{"8.8.8.8", "1.1.1.1", "2607:f8b0::1"}
	for _, s := range public {
		ip := net.ParseIP(s)
		require.NotNil(t, ip)
		assert.False(t, isPrivateIP(ip), "%s should be public", s)
	}
}

func TestWrapClientSkipsPrivateBlocking(t *testing.T) {
	c := WrapClient(nil)
	_, err := c.ValidateURL("http://127.0.0.1:9999/test")
	assert.NoError(t, err)
}
