package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"mercuriogate/internal/domain"
	"mercuriogate/internal/repository"
)

type fakeTrafficStore struct {
	limitMB   int64
	limitErr  error
	usage     domain.TrafficUsage
	usageErr  error
	addErr    error
	isAdmin   bool
	adminErr  error
	addedDays []time.Time
	added     []int64
	logged    []*domain.TrafficLogEntry
	deleted   int64
	deleteErr error
	cutoff    time.Time
}

func (f *fakeTrafficStore) GetLimitMB(ctx context.Context, userID string) (int64, error) {
	return f.limitMB, f.limitErr
}

func (f *fakeTrafficStore) GetUsage(ctx context.Context, userID string, day time.Time) (*domain.TrafficUsage, error) {
	if f.usageErr != nil {
		return nil, f.usageErr
	}
	u := f.usage
	return &u, nil
}

func (f *fakeTrafficStore) AddUsage(ctx context.Context, userID string, day time.Time, bytes int64) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.addedDays = append(f.addedDays, day)
	f.added = append(f.added, bytes)
	return nil
}

func (f *fakeTrafficStore) IsAdministrator(ctx context.Context, userID string) (bool, error) {
	return f.isAdmin, f.adminErr
}

func (f *fakeTrafficStore) AppendLog(ctx context.Context, entry *domain.TrafficLogEntry) error {
	f.logged = append(f.logged, entry)
	return nil
}

func (f *fakeTrafficStore) DeleteUsageBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.deleted, f.deleteErr
}

func TestGetLimitDefaultsOnMissingUser(t *testing.T) {
	s := NewTrafficService(&fakeTrafficStore{limitErr: repository.ErrNotFound})

	if got := s.GetLimit(context.Background(), "ghost"); got != DefaultDailyLimitMB {
		t.Errorf("limit = %d, want default %d", got, DefaultDailyLimitMB)
	}
}

func TestGetLimitDefaultsOnError(t *testing.T) {
	s := NewTrafficService(&fakeTrafficStore{limitErr: errors.New("db down")})

	if got := s.GetLimit(context.Background(), "u1"); got != DefaultDailyLimitMB {
		t.Errorf("limit = %d, want default %d", got, DefaultDailyLimitMB)
	}
}

func TestCheckAllowsWithinLimit(t *testing.T) {
	store := &fakeTrafficStore{
		limitMB: 50,
		usage:   domain.TrafficUsage{BytesDownloaded: 10 * 1024 * 1024},
	}
	s := NewTrafficService(store)

	allowed, reason, _ := s.Check(context.Background(), "u1", 5*1024*1024)
	if !allowed {
		t.Errorf("expected allowed, got rejection: %s", reason)
	}
}

func TestCheckRejectsOverLimit(t *testing.T) {
	store := &fakeTrafficStore{
		limitMB: 50,
		usage:   domain.TrafficUsage{BytesDownloaded: 48 * 1024 * 1024},
	}
	s := NewTrafficService(store)

	allowed, reason, _ := s.Check(context.Background(), "u1", 10*1024*1024)
	if allowed {
		t.Fatal("expected rejection over limit")
	}
	if reason == "" {
		t.Error("rejection should carry a human-readable reason")
	}
}

func TestCheckUnlimitedUser(t *testing.T) {
	store := &fakeTrafficStore{
		limitMB: 0,
		usage:   domain.TrafficUsage{BytesDownloaded: 900 * 1024 * 1024},
	}
	s := NewTrafficService(store)

	if allowed, _, _ := s.Check(context.Background(), "u1", 500*1024*1024); !allowed {
		t.Error("limit 0 means unlimited, check should pass")
	}
}

func TestCheckFailsOpenOnUsageError(t *testing.T) {
	store := &fakeTrafficStore{limitMB: 50, usageErr: errors.New("db down")}
	s := NewTrafficService(store)

	if allowed, _, _ := s.Check(context.Background(), "u1", 5*1024*1024); !allowed {
		t.Error("usage read error should fail open")
	}
}

func TestIsAdministratorFailsClosed(t *testing.T) {
	s := NewTrafficService(&fakeTrafficStore{isAdmin: true, adminErr: errors.New("db down")})

	if s.IsAdministrator(context.Background(), "u1") {
		t.Error("role check error should fail closed")
	}
	if s.IsAdministrator(context.Background(), "") {
		t.Error("anonymous user can not be administrator")
	}
}

func TestRecordChargesEstimatedSize(t *testing.T) {
	store := &fakeTrafficStore{}
	s := NewTrafficService(store)

	s.Record(context.Background(), "u1", 2048, 1900, "fp-1", "download")

	if len(store.added) != 1 || store.added[0] != 2048 {
		t.Fatalf("charged %v, want single charge of 2048 (estimated size)", store.added)
	}
	if len(store.logged) != 1 {
		t.Fatal("expected one audit log entry")
	}
	if store.logged[0].ActualBytes != 1900 || store.logged[0].EstimatedBytes != 2048 {
		t.Errorf("audit entry = %+v, want estimated 2048 actual 1900", store.logged[0])
	}
}

func TestRecordSkipsAnonymousAndZero(t *testing.T) {
	store := &fakeTrafficStore{}
	s := NewTrafficService(store)

	s.Record(context.Background(), "", 2048, 2048, "fp", "download")
	s.Record(context.Background(), "u1", 0, 0, "fp", "download")

	if len(store.added) != 0 || len(store.logged) != 0 {
		t.Error("anonymous and zero-byte downloads must not be recorded")
	}
}

func TestRecordSwallowsStoreError(t *testing.T) {
	store := &fakeTrafficStore{addErr: errors.New("db down")}
	s := NewTrafficService(store)

	// Не должно паниковать и не должно возвращать ошибку наружу
	s.Record(context.Background(), "u1", 2048, 2048, "fp", "download")
}

func TestStatusRemaining(t *testing.T) {
	store := &fakeTrafficStore{
		limitMB: 50,
		usage:   domain.TrafficUsage{BytesDownloaded: 20 * 1024 * 1024, DownloadCount: 3},
	}
	s := NewTrafficService(store)

	status := s.Status(context.Background(), "u1")
	if status.RemainingMB == nil || *status.RemainingMB != 30 {
		t.Errorf("remaining = %v, want 30", status.RemainingMB)
	}
	if status.DownloadCount != 3 {
		t.Errorf("download count = %d, want 3", status.DownloadCount)
	}
	if status.IsUnlimited {
		t.Error("limited user should not be marked unlimited")
	}
}

func TestStatusUnlimited(t *testing.T) {
	s := NewTrafficService(&fakeTrafficStore{limitMB: 0})

	status := s.Status(context.Background(), "admin")
	if !status.IsUnlimited {
		t.Error("limit 0 should be reported as unlimited")
	}
	if status.RemainingMB != nil {
		t.Error("unlimited user has no remaining value")
	}
}

func TestCleanupCutoff(t *testing.T) {
	store := &fakeTrafficStore{deleted: 7}
	s := NewTrafficService(store)

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	if err := s.Cleanup(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := now.AddDate(0, 0, -RetentionDays)
	if !store.cutoff.Equal(want) {
		t.Errorf("cutoff = %v, want %v", store.cutoff, want)
	}
}
