package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"designlab/core"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const defaultMaxImageBytes = 25 << 20

// Loader fetches and decodes the image behind a layer or product source.
type Loader interface {
	Load(ctx context.Context, src string) (image.Image, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, src string) (image.Image, error)

func (f LoaderFunc) Load(ctx context.Context, src string) (image.Image, error) {
	return f(ctx, src)
}

func decode(r io.Reader, maxBytes int64) (image.Image, error) {
	img, err := imaging.Decode(io.LimitReader(r, maxBytes), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// ErrPrivateAddress is returned when an image host resolves to an address that is not
// publicly routable.
var ErrPrivateAddress = errors.New("refusing to fetch images from a non-public address")

// 100.64.0.0/10, shared address space used by carrier-grade NAT and some cloud VPCs.
var sharedAddressSpace = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

// HTTPLoader fetches images over HTTP(S). By default it only connects to public
// addresses, checked after DNS resolution on every dial, redirects included.
type HTTPLoader struct {
	client       *http.Client
	maxBytes     int64
	allowPrivate bool
}

type HTTPOption func(*HTTPLoader)

// AllowPrivateNetworks lets the loader reach loopback, private and link-local addresses.
func AllowPrivateNetworks() HTTPOption {
	return func(l *HTTPLoader) {
		l.allowPrivate = true
	}
}

func NewHTTPLoader(timeout time.Duration, opts ...HTTPOption) *HTTPLoader {
	l := &HTTPLoader{maxBytes: defaultMaxImageBytes}
	for _, opt := range opts {
		opt(l)
	}

	dialer := &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
	if !l.allowPrivate {
		dialer.Control = refuseNonPublic
	}
	l.client = &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			// No proxy: the address check has to see the real destination.
			Proxy:               nil,
			DialContext:         dialer.DialContext,
			TLSHandshakeTimeout: 10 * time.Second,
			MaxIdleConns:        16,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	return l
}

func refuseNonPublic(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrPrivateAddress, address)
	}
	if ip := net.ParseIP(host); ip == nil || !isPublicIP(ip) {
		return fmt.Errorf("%w: %s", ErrPrivateAddress, host)
	}
	return nil
}

func isPublicIP(ip net.IP) bool {
	switch {
	case ip.IsLoopback(), ip.IsPrivate(), ip.IsUnspecified(),
		ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast(),
		ip.IsInterfaceLocalMulticast(), ip.IsMulticast():
		return false
	case sharedAddressSpace.Contains(ip):
		return false
	}
	return true
}

func (l *HTTPLoader) Load(ctx context.Context, src string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid image url %s: %w", src, err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", src, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch %s: status %d", src, resp.StatusCode)
	}
	return decode(resp.Body, l.maxBytes)
}

// FileLoader reads images from the local disk. Relative paths resolve against Root.
type FileLoader struct {
	Root string
}

func (l FileLoader) Load(ctx context.Context, src string) (image.Image, error) {
	p := strings.TrimPrefix(src, "file://")
	if !filepath.IsAbs(p) && l.Root != "" {
		p = filepath.Join(l.Root, p)
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return decode(f, defaultMaxImageBytes)
}

// MediaLoader serves sources that live in our own media store straight from the store,
// and hands anything else to Next.
type MediaLoader struct {
	Store core.MediaStore
	Next  Loader
}

func (l MediaLoader) Load(ctx context.Context, src string) (image.Image, error) {
	if key, ok := l.keyFor(src); ok {
		rc, err := l.Store.Open(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to open media %s: %w", key, err)
		}
		defer rc.Close()
		return decode(rc, defaultMaxImageBytes)
	}
	if l.Next == nil {
		return nil, fmt.Errorf("no loader for %s", src)
	}
	return l.Next.Load(ctx, src)
}

func (l MediaLoader) keyFor(src string) (string, bool) {
	base := l.Store.PublicURL("")
	if base == "" || !strings.HasPrefix(src, base) {
		return "", false
	}
	key, err := url.PathUnescape(strings.TrimPrefix(src, base))
	if err != nil || key == "" || strings.Contains(key, "..") {
		return "", false
	}
	return key, true
}

// SchemeLoader picks the HTTP loader for http(s) sources and the file loader for the rest.
// The CLI uses it to render designs that mix remote and local artwork.
type SchemeLoader struct {
	HTTP Loader
	File Loader
}

func (l SchemeLoader) Load(ctx context.Context, src string) (image.Image, error) {
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		return l.HTTP.Load(ctx, src)
	}
	return l.File.Load(ctx, src)
}
