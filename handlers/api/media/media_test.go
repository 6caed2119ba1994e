package media

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"designlab/core"
	"designlab/handlers/auth"
	"designlab/middleware"
	"designlab/stores/memory"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
)

var testClaims = &auth.AppClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func multipartBody(t *testing.T, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(data)
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func newTestRouter(h *Handler, limit func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(middleware.WithClaims(req.Context(), testClaims)))
		})
	})
	if limit == nil {
		limit = func(next http.Handler) http.Handler { return next }
	}
	r.Route("/api/v2/media", func(r chi.Router) { h.Routes(r, limit) })
	return r
}

func upload(t *testing.T, router http.Handler, filename, contentType string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, filename, contentType, data)
	req := httptest.NewRequest(http.MethodPost, "/api/v2/media/", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleUpload_Success(t *testing.T) {
	store := memory.NewMediaStore("http://localhost:3002/media")
	h := New(store, 1<<20)
	h.now = func() time.Time { return time.UnixMilli(1700000000000) }

	rec := upload(t, newTestRouter(h, nil), "Logo.PNG", "image/png", pngBytes(t))
	if rec.Code != http.StatusCreated {
		t.Fatalf("Status code mismatch: got %d, want %d (%s)", rec.Code, http.StatusCreated, rec.Body.String())
	}

	var file core.MediaFile
	if err := json.NewDecoder(rec.Body).Decode(&file); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if file.ID != "user-1/1700000000000.png" {
		t.Errorf("ID = %q", file.ID)
	}
	if file.URL != "http://localhost:3002/media/user-1/1700000000000.png" {
		t.Errorf("URL = %q", file.URL)
	}
	if file.Type != "image/png" || file.Name != "Logo.PNG" {
		t.Errorf("file = %+v", file)
	}

	rc, err := store.Open(context.Background(), file.ID)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	if _, err := png.Decode(rc); err != nil {
		t.Errorf("stored content is not the uploaded png: %v", err)
	}
}

func TestHandleUpload_RejectsNonImages(t *testing.T) {
	store := memory.NewMediaStore("/media")
	router := newTestRouter(New(store, 1<<20), nil)

	tests := []struct {
		name        string
		filename    string
		contentType string
		data        []byte
	}{
		{"declared pdf", "doc.pdf", "application/pdf", []byte("%PDF-1.4 hello")},
		{"text posing as png", "fake.png", "image/png", []byte("just some text, not pixels")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := upload(t, router, tt.filename, tt.contentType, tt.data)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}

	if objs, _ := store.List(context.Background(), "user-1/"); len(objs) != 0 {
		t.Errorf("rejected uploads were stored: %+v", objs)
	}
}

func TestHandleUpload_TooLarge(t *testing.T) {
	router := newTestRouter(New(memory.NewMediaStore("/media"), 16), nil)
	rec := upload(t, router, "big.png", "image/png", pngBytes(t))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

func TestHandleUpload_MissingFile(t *testing.T) {
	router := newTestRouter(New(memory.NewMediaStore("/media"), 1<<20), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v2/media/", strings.NewReader("nope"))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleUpload_RateLimited(t *testing.T) {
	limiter := middleware.NewRateLimiter(1, 1)
	router := newTestRouter(New(memory.NewMediaStore("/media"), 1<<20), limiter.Handler)

	if rec := upload(t, router, "a.png", "image/png", pngBytes(t)); rec.Code != http.StatusCreated {
		t.Fatalf("first upload: status = %d", rec.Code)
	}
	if rec := upload(t, router, "b.png", "image/png", pngBytes(t)); rec.Code != http.StatusTooManyRequests {
		t.Errorf("second upload: status = %d, want 429", rec.Code)
	}
}

func TestHandleList_OwnThenStock(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMediaStore("/media")
	store.Upload(ctx, "user-1/100.png", "image/png", strings.NewReader("a"))
	store.Upload(ctx, "user-1/200.jpg", "image/jpeg", strings.NewReader("b"))
	store.Upload(ctx, "user-2/300.png", "image/png", strings.NewReader("c"))
	store.Upload(ctx, "stock/star.png", "image/png", strings.NewReader("d"))

	rec := httptest.NewRecorder()
	newTestRouter(New(store, 1<<20), nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v2/media/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Status code mismatch: got %d, want %d", rec.Code, http.StatusOK)
	}

	var files []core.MediaFile
	if err := json.NewDecoder(rec.Body).Decode(&files); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	var ids []string
	for _, f := range files {
		ids = append(ids, f.ID)
	}
	want := []string{"user-1/200.jpg", "user-1/100.png", "stock/star.png"}
	if strings.Join(ids, ",") != strings.Join(want, ",") {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	if files[0].Stock || !files[2].Stock {
		t.Errorf("stock flags = %v %v", files[0].Stock, files[2].Stock)
	}
	if files[2].URL != "/media/stock/star.png" || files[2].Name != "star.png" {
		t.Errorf("stock file = %+v", files[2])
	}
}

func TestHandleList_Empty(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(New(memory.NewMediaStore("/media"), 1<<20), nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v2/media/", nil))
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("body = %s, want []", got)
	}
}

func TestHandleDelete(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMediaStore("/media")
	store.Upload(ctx, "user-1/100.png", "image/png", strings.NewReader("a"))
	router := newTestRouter(New(store, 1<<20), nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v2/media/100.png", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Status code mismatch: got %d, want %d", rec.Code, http.StatusNoContent)
	}
	if _, err := store.Open(ctx, "user-1/100.png"); err == nil {
		t.Error("file still present after delete")
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v2/media/..", nil))
	if rec.Code != http.StatusBadRequest && rec.Code != http.StatusNotFound {
		t.Errorf("dot-dot delete: status = %d", rec.Code)
	}
}

func TestUserPrefix(t *testing.T) {
	for subject, want := range map[string]string{
		"github:1":  "github:1/",
		"a/b":       "a_b/",
		"../escape": "__escape/",
		"oidc|123":  "oidc|123/",
	} {
		if got := userPrefix(subject); got != want {
			t.Errorf("userPrefix(%q) = %q, want %q", subject, got, want)
		}
	}
}
