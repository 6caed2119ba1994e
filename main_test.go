package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"designlab/config"
	"designlab/core"
)

const testCatalogYAML = `
products:
  - id: tee
    tenant: default
    name: Classic Tee
    price: "19.99"
    image: tee.png
`

func writePNG(t *testing.T, path string, c color.Color) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, c)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func newTestApp(t *testing.T) (*app, http.Handler) {
	t.Helper()
	dir := t.TempDir()
	mediaDir := filepath.Join(dir, "media")
	writePNG(t, filepath.Join(mediaDir, "products", "tee.png"), color.RGBA{R: 255, A: 255})

	catalogPath := filepath.Join(dir, "catalog.yaml")
	if err := os.WriteFile(catalogPath, []byte(testCatalogYAML), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{
		StorageType:         "memory",
		MediaStorageType:    "filesystem",
		MediaPath:           mediaDir,
		MediaPublicURL:      "/media",
		MaxUploadBytes:      1 << 20,
		CatalogPath:         catalogPath,
		DefaultTenant:       "default",
		CanvasWidth:         100,
		CanvasHeight:        80,
		RenderCache:         "memory",
		JWTSecret:           "test-secret",
		UploadRatePerMinute: 60,
		UploadRateBurst:     5,
	}
	a, err := newApp(context.Background(), cfg)
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	t.Cleanup(a.close)
	return a, setupRouter(a)
}

func TestRouter_RequiresToken(t *testing.T) {
	_, router := newTestApp(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v2/designs/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRouter_PublicEndpoints(t *testing.T) {
	_, router := newTestApp(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("/metrics status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/media/products/tee.png", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("/media status = %d", rec.Code)
	}
}

func TestRouter_CreateAndRender(t *testing.T) {
	a, router := newTestApp(t)
	token, err := a.auth.IssueToken(&core.User{Subject: "github:1", Login: "octo"})
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v2/designs/", strings.NewReader(`{"name":"Launch","productId":"tee"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d, body %s", rec.Code, rec.Body.String())
	}

	var created struct {
		ID      string           `json:"id"`
		Product *core.ProductRef `json:"product"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	if created.Product == nil || created.Product.ImageURL != "/media/products/tee.png" {
		t.Fatalf("product = %+v", created.Product)
	}

	// Previews accept the token as a query parameter for <img> tags.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v2/designs/"+created.ID+"/render.png?token="+token, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("render: status = %d, body %s", rec.Code, rec.Body.String())
	}

	img, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("render is not a png: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 100 || b.Dy() != 80 {
		t.Errorf("render size = %v", b)
	}
	// The square product image is contained and centered: red in the middle, white at the edge.
	if r, g, _, _ := img.At(50, 40).RGBA(); r>>8 < 200 || g>>8 > 50 {
		t.Errorf("center pixel = %v, want red", img.At(50, 40))
	}
	if r, g, b, _ := img.At(2, 40).RGBA(); r>>8 < 250 || g>>8 < 250 || b>>8 < 250 {
		t.Errorf("edge pixel = %v, want white", img.At(2, 40))
	}
}

func TestRouter_ProductsForDefaultTenant(t *testing.T) {
	a, router := newTestApp(t)
	token, _ := a.auth.IssueToken(&core.User{Subject: "github:2"})

	req := httptest.NewRequest(http.MethodGet, "/api/v2/products/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var list []core.Product
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != "tee" {
		t.Errorf("products = %+v", list)
	}
}

func TestRouter_LayerSourcesAreRestricted(t *testing.T) {
	a, router := newTestApp(t)
	token, _ := a.auth.IssueToken(&core.User{Subject: "github:3"})

	call := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	rec := call(http.MethodPost, "/api/v2/designs/", `{"productId":"tee"}`)
	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	layers := "/api/v2/designs/" + created.ID + "/layers"

	rec = call(http.MethodPost, layers, `{"name":"iam","url":"http://169.254.169.254/latest/meta-data/iam","type":"image/png"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("metadata url: status = %d, want 400", rec.Code)
	}

	rec = call(http.MethodPost, layers, `{"name":"tee.png","url":"/media/products/tee.png","type":"image/png"}`)
	if rec.Code != http.StatusCreated {
		t.Errorf("own media: status = %d, body %s", rec.Code, rec.Body.String())
	}
}
