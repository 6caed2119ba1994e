package lab

import (
	"testing"

	"designlab/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSources_Check(t *testing.T) {
	src := Sources{
		Prefixes: []string{"/media", "https://assets.shop.test/media/"},
		Hosts:    []string{"cdn.example.com"},
	}

	for _, ok := range []string{
		"/media/user-1/1700000000000.png",
		"https://assets.shop.test/media/stock/star.png",
		"https://cdn.example.com/logo.png",
		"http://CDN.example.com/logo.png",
	} {
		assert.NoError(t, src.Check(ok), ok)
	}

	for _, bad := range []string{
		"http://127.0.0.1:8080/latest/meta-data/iam",
		"http://169.254.169.254/latest/meta-data/",
		"https://cdn.example.com.evil.test/logo.png",
		"https://cdn.example.com@10.0.0.1/logo.png",
		"/media-private/secret.png",
		"/media/../etc/passwd",
		"/media/%2e%2e/config.yaml",
		"file:///etc/passwd",
		"ftp://cdn.example.com/logo.png",
		"",
	} {
		assert.ErrorIs(t, src.Check(bad), ErrUntrustedSource, bad)
	}
}

func TestSession_RejectsUntrustedMedia(t *testing.T) {
	calls := 0
	s := NewSession(core.Design{Product: &tshirt},
		WithSources(Sources{Prefixes: []string{"/media/"}}),
		WithOnChange(func(core.Design) error { calls++; return nil }),
	)

	_, err := s.OnSelectMedia(core.MediaFile{Name: "iam", URL: "http://127.0.0.1:9000/latest/meta-data/iam", Type: "image/png"})
	assert.ErrorIs(t, err, ErrUntrustedSource)
	assert.Empty(t, s.Design().Layers)
	assert.Equal(t, 0, calls)

	layer, err := s.OnSelectMedia(core.MediaFile{Name: "a.png", URL: "/media/user-1/a.png", Type: "image/png"})
	require.NoError(t, err)
	assert.Equal(t, "/media/user-1/a.png", layer.Src)
	assert.Equal(t, 1, calls)
}
