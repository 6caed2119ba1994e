package filesystem

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"designlab/core"
	"designlab/stores/record"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

const designExt = ".json"

type fsStore struct {
	basePath string
}

// NewStore creates a filesystem design store rooted at basePath.
func NewStore(basePath string) (*fsStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &fsStore{basePath: basePath}, nil
}

func (s *fsStore) getUserDesignPath(userID string) string {
	return filepath.Join(s.basePath, userID)
}

// designPath resolves the file for a design and makes sure it stays inside the user's directory.
func (s *fsStore) designPath(userID, id string) (string, error) {
	if err := record.ValidID(id); err != nil {
		return "", err
	}
	userPath, err := filepath.Abs(s.getUserDesignPath(userID))
	if err != nil {
		return "", err
	}
	filePath, err := filepath.Abs(filepath.Join(userPath, id+designExt))
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(filePath, userPath+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid path: access denied")
	}
	return filePath, nil
}

func (s *fsStore) List(ctx context.Context, userID string) ([]*core.Design, error) {
	userPath := s.getUserDesignPath(userID)
	log := logrus.WithField("user_id", userID).WithField("path", userPath)

	files, err := os.ReadDir(userPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info("User directory does not exist, returning empty list.")
			return []*core.Design{}, nil
		}
		log.WithError(err).Error("Failed to read user directory")
		return nil, err
	}

	designs := make([]*core.Design, 0, len(files))
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != designExt {
			continue
		}
		data, err := os.ReadFile(filepath.Join(userPath, file.Name()))
		if err != nil {
			log.WithError(err).Warnf("Failed to read design file %s, skipping", file.Name())
			continue
		}
		d, err := record.Unmarshal(data)
		if err != nil {
			log.WithError(err).Warnf("Failed to unmarshal design file %s, skipping", file.Name())
			continue
		}
		designs = append(designs, d.Summary())
	}
	sort.Slice(designs, func(i, j int) bool {
		return designs[i].UpdatedAt.After(designs[j].UpdatedAt)
	})

	log.Infof("Listed %d designs", len(designs))
	return designs, nil
}

func (s *fsStore) Get(ctx context.Context, userID, id string) (*core.Design, error) {
	filePath, err := s.designPath(userID, id)
	if err != nil {
		return nil, err
	}
	log := logrus.WithFields(logrus.Fields{"user_id": userID, "design_id": id, "path": filePath})

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn("Design file not found")
			return nil, fmt.Errorf("design %s: %w", id, core.ErrNotFound)
		}
		log.WithError(err).Error("Failed to read design file")
		return nil, err
	}

	d, err := record.Unmarshal(data)
	if err != nil {
		log.WithError(err).Error("Failed to unmarshal design data")
		return nil, err
	}

	log.Debug("Design retrieved successfully")
	return d, nil
}

func (s *fsStore) Save(ctx context.Context, design *core.Design) error {
	if design.UserID == "" {
		return fmt.Errorf("UserID cannot be empty")
	}
	if design.ID == "" {
		design.ID = ulid.Make().String()
	}
	filePath, err := s.designPath(design.UserID, design.ID)
	if err != nil {
		return err
	}
	log := logrus.WithFields(logrus.Fields{"user_id": design.UserID, "design_id": design.ID, "path": filePath})

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		log.WithError(err).Error("Failed to create user directory")
		return err
	}

	now := time.Now()
	design.CreatedAt = now
	if data, err := os.ReadFile(filePath); err == nil {
		if existing, err := record.Unmarshal(data); err == nil && !existing.CreatedAt.IsZero() {
			design.CreatedAt = existing.CreatedAt
		}
	}
	design.UpdatedAt = now

	data, err := record.Marshal(design)
	if err != nil {
		log.WithError(err).Error("Failed to marshal design for saving")
		return err
	}

	// Write to a temp file and rename so readers never see a partial design.
	tmp := filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		log.WithError(err).Error("Failed to write design file")
		return err
	}
	if err := os.Rename(tmp, filePath); err != nil {
		log.WithError(err).Error("Failed to write design file")
		return err
	}

	log.Info("Design saved successfully")
	return nil
}

func (s *fsStore) Delete(ctx context.Context, userID, id string) error {
	filePath, err := s.designPath(userID, id)
	if err != nil {
		return err
	}
	log := logrus.WithFields(logrus.Fields{"user_id": userID, "design_id": id, "path": filePath})

	if err := os.Remove(filePath); err != nil {
		if os.IsNotExist(err) {
			log.Warn("Design file not found for deletion")
			return fmt.Errorf("design %s: %w", id, core.ErrNotFound)
		}
		log.WithError(err).Error("Failed to delete design file")
		return err
	}

	log.Info("Design deleted successfully")
	return nil
}
