package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"mercuriogate/internal/service/s3"
)

type fakePinger struct {
	err error
}

func (p *fakePinger) Ping() error { return p.err }

type brokenStorage struct {
	fakeListStorage
}

func (b *brokenStorage) Stat(ctx context.Context, key string) (int64, error) {
	return 0, errors.New("connection refused")
}

// fakeListStorage отвечает NotFound на любой Stat — живой, но пустой бакет.
func TestHealthOK(t *testing.T) {
	rec := httptest.NewRecorder()
	Health(&fakePinger{}, &fakeListStorage{}).ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestHealthDatabaseDown(t *testing.T) {
	rec := httptest.NewRecorder()
	Health(&fakePinger{err: errors.New("no connection")}, &fakeListStorage{}).
		ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestHealthStorageDown(t *testing.T) {
	rec := httptest.NewRecorder()
	Health(&fakePinger{}, &brokenStorage{}).ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

var _ s3.Storage = (*brokenStorage)(nil)
