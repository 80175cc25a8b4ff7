package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"mercuriogate/internal/service"
	"mercuriogate/internal/service/s3"
)

type fakeListStorage struct {
	objects []s3.ObjectInfo
}

func (f *fakeListStorage) Stat(ctx context.Context, key string) (int64, error) {
	return 0, s3.ErrObjectNotFound
}

func (f *fakeListStorage) GetObject(ctx context.Context, key string) (s3.Object, error) {
	return nil, s3.ErrObjectNotFound
}

func (f *fakeListStorage) ListFolder(ctx context.Context, prefix string) ([]s3.ObjectInfo, error) {
	return f.objects, nil
}

func newDownloadRequest(t *testing.T, target string, params map[string]string) *http.Request {
	t.Helper()
	r := httptest.NewRequest("GET", target, nil)
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestUnifiedDownloadInvalidItemType(t *testing.T) {
	h := NewDownloadHandler(nil, nil, nil, nil)

	rec := httptest.NewRecorder()
	h.UnifiedDownload(rec, newDownloadRequest(t, "/v1/download/bogus/42",
		map[string]string{"item_type": "bogus", "item_id": "42"}))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp["error"] != "invalid_item_type" {
		t.Errorf("error = %q, want invalid_item_type", resp["error"])
	}
}

func TestUnifiedDownloadMissingFilePaths(t *testing.T) {
	h := NewDownloadHandler(nil, nil, nil, nil)

	rec := httptest.NewRecorder()
	h.UnifiedDownload(rec, newDownloadRequest(t, "/v1/download/files/export",
		map[string]string{"item_type": "files", "item_id": "export"}))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "missing_file_paths") {
		t.Errorf("body = %s, want missing_file_paths", rec.Body.String())
	}
}

func TestUnifiedDownloadMissingFilePath(t *testing.T) {
	h := NewDownloadHandler(nil, nil, nil, nil)

	rec := httptest.NewRecorder()
	h.UnifiedDownload(rec, newDownloadRequest(t, "/v1/download/file/data/cam.jpg",
		map[string]string{"item_type": "file", "item_id": "data/cam.jpg"}))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "missing_file_path") {
		t.Errorf("body = %s, want missing_file_path", rec.Body.String())
	}
}

func TestParseFilePaths(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		want   []string
	}{
		{"repeated params", []string{"data/a.jpg", "data/b.pdf"}, []string{"data/a.jpg", "data/b.pdf"}},
		{"comma separated", []string{"data/a.jpg,data/b.pdf"}, []string{"data/a.jpg", "data/b.pdf"}},
		{"mixed with blanks", []string{"data/a.jpg, ,data/b.pdf", "", "data/c.mp4"}, []string{"data/a.jpg", "data/b.pdf", "data/c.mp4"}},
		{"empty", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseFilePaths(tt.values)
			if len(got) != len(tt.want) {
				t.Fatalf("parseFilePaths(%v) = %v, want %v", tt.values, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("path[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestUnifiedDownloadInvalidDate(t *testing.T) {
	h := NewDownloadHandler(nil, nil, nil, nil)

	rec := httptest.NewRecorder()
	h.UnifiedDownload(rec, newDownloadRequest(t,
		"/v1/download/parameter/42?start_date=not-a-date",
		map[string]string{"item_type": "parameter", "item_id": "42"}))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestTrafficStatusRequiresAuth(t *testing.T) {
	h := NewDownloadHandler(nil, nil, nil, nil)

	rec := httptest.NewRecorder()
	h.TrafficStatus(rec, httptest.NewRequest("GET", "/v1/user/traffic-status", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestViewFileRejectsParentReferences(t *testing.T) {
	h := NewDownloadHandler(nil, nil, service.NewStreamService(&fakeListStorage{}), &fakeListStorage{})

	rec := httptest.NewRecorder()
	h.ViewFile(rec, newDownloadRequest(t, "/v1/files/view/a/../b",
		map[string]string{"*": "a/../b"}))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestViewFileNotFound(t *testing.T) {
	h := NewDownloadHandler(nil, nil, service.NewStreamService(&fakeListStorage{}), &fakeListStorage{})

	rec := httptest.NewRecorder()
	h.ViewFile(rec, newDownloadRequest(t, "/v1/files/view/data/cam.jpg",
		map[string]string{"*": "data/cam.jpg"}))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestListFolder(t *testing.T) {
	store := &fakeListStorage{objects: []s3.ObjectInfo{
		{Key: "data/a.csv", Size: 10},
		{Key: "data/b.csv", Size: 20},
	}}
	h := NewDownloadHandler(nil, nil, nil, store)

	rec := httptest.NewRecorder()
	h.ListFolder(rec, newDownloadRequest(t, "/v1/files/list-folder/data",
		map[string]string{"*": "data"}))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp["count"].(float64) != 2 {
		t.Errorf("count = %v, want 2", resp["count"])
	}
}
