// Package products serves the product picker for the caller's tenant.
package products

import (
	"errors"
	"net/http"

	"designlab/core"
	"designlab/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

func Routes(catalog core.ProductCatalog) func(chi.Router) {
	return func(r chi.Router) {
		r.Get("/", HandleList(catalog))
		r.Get("/{id}", HandleGet(catalog))
	}
}

func errorJSON(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"error": msg})
}

// HandleList returns the tenant's products, newest first. ?q= filters by name.
func HandleList(catalog core.ProductCatalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.CurrentUser(r.Context())
		if !ok {
			errorJSON(w, r, http.StatusUnauthorized, "User claims not found")
			return
		}

		products, err := catalog.List(r.Context(), claims.TenantID, r.URL.Query().Get("q"))
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"error":  err,
				"tenant": claims.TenantID,
			}).Error("Failed to list products")
			errorJSON(w, r, http.StatusInternalServerError, "Failed to list products")
			return
		}
		if products == nil {
			products = []*core.Product{}
		}
		render.JSON(w, r, products)
	}
}

func HandleGet(catalog core.ProductCatalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.CurrentUser(r.Context())
		if !ok {
			errorJSON(w, r, http.StatusUnauthorized, "User claims not found")
			return
		}

		p, err := catalog.Get(r.Context(), claims.TenantID, chi.URLParam(r, "id"))
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				errorJSON(w, r, http.StatusNotFound, "Product not found")
				return
			}
			logrus.WithError(err).Error("Failed to get product")
			errorJSON(w, r, http.StatusInternalServerError, "Failed to get product")
			return
		}
		render.JSON(w, r, p)
	}
}
