package v1

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignedImageURL(t *testing.T) {
	now := time.Unix(1700000000, 0)

	t.Run("no secret passes through", func(t *testing.T) {
		require.Equal(t, "https://cdn.example.com/a.jpg",
			signedImageURL("https://cdn.example.com/a.jpg", "", time.Minute, now))
	})

	t.Run("empty ref stays empty", func(t *testing.T) {
		require.Equal(t, "", signedImageURL("", "secret", time.Minute, now))
	})

	t.Run("signed URL verifies until expiry", func(t *testing.T) {
		ref := "https://cdn.example.com/a.jpg"
		url := signedImageURL(ref, "secret", 15*time.Minute, now)
		require.Contains(t, url, "expires=")
		require.Contains(t, url, "signature=")

		expires := now.Add(15 * time.Minute).Unix()
		sig := signImageRef(ref, "secret", expires)
		require.True(t, strings.HasSuffix(url, "signature="+sig))

		require.True(t, verifyImageSignature(ref, "secret", sig, expires, now))
		require.False(t, verifyImageSignature(ref, "secret", sig, expires, now.Add(16*time.Minute)))
		require.False(t, verifyImageSignature(ref, "other", sig, expires, now))
		require.False(t, verifyImageSignature(ref+"x", "secret", sig, expires, now))
	})

	t.Run("existing query string uses ampersand", func(t *testing.T) {
		url := signedImageURL("https://cdn.example.com/a.jpg?v=2", "secret", time.Minute, now)
		require.Contains(t, url, "?v=2&expires=")
	})
}
