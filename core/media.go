package core

import (
	"context"
	"io"
	"time"

	"github.com/shopspring/decimal"
)

type (
	// MediaFile is an uploaded or stock image offered by the media picker.
	MediaFile struct {
		ID        string    `json:"id"`
		Name      string    `json:"name"`
		URL       string    `json:"url"`
		Type      string    `json:"type"`
		Size      int64     `json:"size,omitempty"`
		Stock     bool      `json:"stock"`
		CreatedAt time.Time `json:"createdAt"`
	}

	// MediaObject is what a media backend knows about a stored file.
	MediaObject struct {
		Key         string
		ContentType string
		Size        int64
		ModTime     time.Time
	}

	// MediaStore is the object storage holding artwork and product images.
	MediaStore interface {
		// Upload stores the content under key and returns its public URL.
		Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error)

		// List returns the objects directly under prefix.
		List(ctx context.Context, prefix string) ([]MediaObject, error)

		// Open streams an object's content.
		Open(ctx context.Context, key string) (io.ReadCloser, error)

		// Delete removes an object. Removing a missing object is not an error.
		Delete(ctx context.Context, key string) error

		// PublicURL is the URL the browser and the renderer use to fetch key.
		PublicURL(key string) string
	}

	// Product is a catalog entry a design can be built on.
	Product struct {
		ID          string          `json:"id" yaml:"id"`
		TenantID    string          `json:"tenantId" yaml:"tenant"`
		Name        string          `json:"name" yaml:"name"`
		Description string          `json:"description,omitempty" yaml:"description"`
		BasePrice   decimal.Decimal `json:"basePrice" yaml:"-"`
		ImageURL    string          `json:"imageUrl,omitempty" yaml:"image"`
		CreatedAt   time.Time       `json:"createdAt" yaml:"created"`
	}

	// ProductCatalog is the read side of the product admin.
	ProductCatalog interface {
		List(ctx context.Context, tenantID, query string) ([]*Product, error)
		Get(ctx context.Context, tenantID, id string) (*Product, error)
	}
)

// Ref converts a catalog product into the background reference stored on a design.
func (p *Product) Ref() *ProductRef {
	return &ProductRef{ID: p.ID, Name: p.Name, ImageURL: p.ImageURL}
}
