package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"designlab/core"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// memStore implements core.DesignStore in process memory.
type memStore struct {
	mu sync.RWMutex
	// designs maps userID to that user's designs keyed by design ID.
	designs map[string]map[string]core.Design
}

// NewStore creates a new in-memory design store.
func NewStore() *memStore {
	return &memStore{designs: make(map[string]map[string]core.Design)}
}

// List returns summaries of a user's designs, most recently updated first.
func (s *memStore) List(ctx context.Context, userID string) ([]*core.Design, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userDesigns := s.designs[userID]
	designs := make([]*core.Design, 0, len(userDesigns))
	for _, d := range userDesigns {
		designs = append(designs, d.Summary())
	}
	sort.Slice(designs, func(i, j int) bool {
		return designs[i].UpdatedAt.After(designs[j].UpdatedAt)
	})

	logrus.WithField("user_id", userID).Infof("Listed %d designs", len(designs))
	return designs, nil
}

func (s *memStore) Get(ctx context.Context, userID, id string) (*core.Design, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := logrus.WithFields(logrus.Fields{"user_id": userID, "design_id": id})

	d, ok := s.designs[userID][id]
	if !ok {
		log.Warn("Design not found for user")
		return nil, fmt.Errorf("design %s: %w", id, core.ErrNotFound)
	}

	log.Debug("Design retrieved successfully")
	out := d.Clone()
	return &out, nil
}

func (s *memStore) Save(ctx context.Context, design *core.Design) error {
	if design.UserID == "" {
		return fmt.Errorf("UserID cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if design.ID == "" {
		design.ID = ulid.Make().String()
	}
	log := logrus.WithFields(logrus.Fields{"user_id": design.UserID, "design_id": design.ID})

	userDesigns, ok := s.designs[design.UserID]
	if !ok {
		userDesigns = make(map[string]core.Design)
		s.designs[design.UserID] = userDesigns
	}

	now := time.Now()
	if existing, exists := userDesigns[design.ID]; exists {
		design.CreatedAt = existing.CreatedAt
	} else {
		design.CreatedAt = now
	}
	design.UpdatedAt = now

	userDesigns[design.ID] = design.Clone()
	log.Info("Design saved successfully")
	return nil
}

func (s *memStore) Delete(ctx context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := logrus.WithFields(logrus.Fields{"user_id": userID, "design_id": id})

	if _, ok := s.designs[userID][id]; !ok {
		log.Warn("Design not found for deletion")
		return fmt.Errorf("design %s: %w", id, core.ErrNotFound)
	}

	delete(s.designs[userID], id)
	log.Info("Design deleted successfully")
	return nil
}
