package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"designlab/core"

	"github.com/sirupsen/logrus"
)

type object struct {
	data        []byte
	contentType string
	modTime     time.Time
}

// mediaStore implements core.MediaStore in process memory.
type mediaStore struct {
	mu      sync.RWMutex
	objects map[string]object
	baseURL string
}

// NewMediaStore creates an in-memory media store whose public URLs start with baseURL.
func NewMediaStore(baseURL string) *mediaStore {
	return &mediaStore{
		objects: make(map[string]object),
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

func (s *mediaStore) Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("failed to read upload: %w", err)
	}

	s.mu.Lock()
	s.objects[key] = object{data: data, contentType: contentType, modTime: time.Now()}
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{"key": key, "size": len(data)}).Info("Media uploaded successfully")
	return s.PublicURL(key), nil
}

func (s *mediaStore) List(ctx context.Context, prefix string) ([]core.MediaObject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []core.MediaObject
	for key, obj := range s.objects {
		rest, ok := strings.CutPrefix(key, prefix)
		if !ok || rest == "" || strings.Contains(rest, "/") {
			continue
		}
		out = append(out, core.MediaObject{
			Key:         key,
			ContentType: obj.contentType,
			Size:        int64(len(obj.data)),
			ModTime:     obj.modTime,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *mediaStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("media %s: %w", key, core.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (s *mediaStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.objects, key)
	s.mu.Unlock()

	logrus.WithField("key", key).Info("Media deleted successfully")
	return nil
}

func (s *mediaStore) PublicURL(key string) string {
	return s.baseURL + "/" + key
}
