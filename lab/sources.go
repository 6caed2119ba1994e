package lab

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var ErrUntrustedSource = errors.New("image source is not allowed")

// Sources restricts where artwork may be loaded from. A source is allowed when it starts
// with one of Prefixes (our own media URLs) or is an http(s) URL on one of Hosts.
type Sources struct {
	Prefixes []string
	Hosts    []string
}

// Check returns ErrUntrustedSource for anything outside the allowed prefixes and hosts.
func (s Sources) Check(src string) error {
	u, err := url.Parse(src)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUntrustedSource, err)
	}
	if hasDotSegment(u.Path) || u.User != nil {
		return fmt.Errorf("%w: %s", ErrUntrustedSource, src)
	}

	for _, p := range s.Prefixes {
		if p == "" {
			continue
		}
		if !strings.HasSuffix(p, "/") {
			p += "/"
		}
		if strings.HasPrefix(src, p) {
			return nil
		}
	}

	if u.Scheme == "http" || u.Scheme == "https" {
		host := strings.ToLower(u.Hostname())
		for _, h := range s.Hosts {
			if host != "" && strings.EqualFold(h, host) {
				return nil
			}
		}
	}
	return fmt.Errorf("%w: %s", ErrUntrustedSource, src)
}

func hasDotSegment(p string) bool {
	unescaped, err := url.PathUnescape(p)
	if err != nil {
		return true
	}
	for _, seg := range strings.Split(strings.ReplaceAll(unescaped, `\`, "/"), "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}
