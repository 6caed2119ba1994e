package filesystem

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"designlab/core"

	"github.com/sirupsen/logrus"
)

// mediaStore keeps media files on local disk; main serves them under /media/.
type mediaStore struct {
	root    string
	baseURL string
}

func NewMediaStore(root, baseURL string) (*mediaStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}
	return &mediaStore{root: root, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// Root is the directory served as the public media path.
func (s *mediaStore) Root() string {
	return s.root
}

func (s *mediaStore) path(key string) (string, error) {
	root, err := filepath.Abs(s.root)
	if err != nil {
		return "", err
	}
	p, err := filepath.Abs(filepath.Join(root, filepath.FromSlash(key)))
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(p, root+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid media key %q: access denied", key)
	}
	return p, nil
}

func (s *mediaStore) Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	p, err := s.path(key)
	if err != nil {
		return "", err
	}
	log := logrus.WithFields(logrus.Fields{"key": key, "path": p})

	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		log.WithError(err).Error("Failed to create media directory")
		return "", err
	}
	f, err := os.Create(p)
	if err != nil {
		log.WithError(err).Error("Failed to create media file")
		return "", err
	}
	n, err := io.Copy(f, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(p)
		log.WithError(err).Error("Failed to write media file")
		return "", err
	}

	log.WithField("size", n).Info("Media uploaded successfully")
	return s.PublicURL(key), nil
}

func (s *mediaStore) List(ctx context.Context, prefix string) ([]core.MediaObject, error) {
	dir, err := s.path(strings.TrimSuffix(prefix, "/"))
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	out := make([]core.MediaObject, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			logrus.WithError(err).Warnf("Failed to stat media file %s, skipping", e.Name())
			continue
		}
		out = append(out, core.MediaObject{
			Key:         prefix + e.Name(),
			ContentType: mime.TypeByExtension(filepath.Ext(e.Name())),
			Size:        info.Size(),
			ModTime:     info.ModTime(),
		})
	}
	return out, nil
}

func (s *mediaStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("media %s: %w", key, core.ErrNotFound)
		}
		return nil, err
	}
	return f, nil
}

func (s *mediaStore) Delete(ctx context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).WithField("key", key).Error("Failed to delete media file")
		return err
	}
	logrus.WithField("key", key).Info("Media deleted successfully")
	return nil
}

func (s *mediaStore) PublicURL(key string) string {
	return s.baseURL + "/" + key
}
