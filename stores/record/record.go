// Package record is the serialized form of a design in file and object stores, where the
// owner fields hidden from API responses must survive a round trip.
package record

import (
	"encoding/json"
	"fmt"
	"path"

	"designlab/core"
)

type design struct {
	core.Design
	UserID   string `json:"userId"`
	TenantID string `json:"tenantId"`
}

func Marshal(d *core.Design) ([]byte, error) {
	return json.Marshal(design{Design: *d, UserID: d.UserID, TenantID: d.TenantID})
}

func Unmarshal(data []byte) (*core.Design, error) {
	var rec design
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	d := rec.Design
	d.UserID = rec.UserID
	d.TenantID = rec.TenantID
	return &d, nil
}

// ValidID rejects ids that could escape a user's directory or key prefix.
func ValidID(id string) error {
	if id == "" || id == "." || id == ".." {
		return fmt.Errorf("invalid design id: must not be empty or a dot directory")
	}
	if path.Base(id) != id {
		return fmt.Errorf("invalid design id: must not be a path")
	}
	return nil
}
