package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"mercuriogate/internal/domain"
	"mercuriogate/internal/repository"
)

const (
	// Суточный лимит по умолчанию для пользователей без персонального.
	DefaultDailyLimitMB = 50
	// Срок хранения учётных записей трафика.
	RetentionDays = 30
)

// TrafficStore — персистентный учёт трафика.
type TrafficStore interface {
	GetLimitMB(ctx context.Context, userID string) (int64, error)
	GetUsage(ctx context.Context, userID string, day time.Time) (*domain.TrafficUsage, error)
	AddUsage(ctx context.Context, userID string, day time.Time, bytes int64) error
	IsAdministrator(ctx context.Context, userID string) (bool, error)
	AppendLog(ctx context.Context, entry *domain.TrafficLogEntry) error
	DeleteUsageBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// TrafficService ведёт суточные квоты скачиваний. Политика отказов
// несимметрична: проверка квоты при ошибке пропускает (доступность
// данных важнее точности учёта), проверка админства при ошибке
// отказывает.
type TrafficService struct {
	repo TrafficStore

	now func() time.Time
}

func NewTrafficService(repo TrafficStore) *TrafficService {
	return &TrafficService{repo: repo, now: time.Now}
}

// GetLimit возвращает лимит пользователя в мегабайтах. 0 — безлимит.
// Ошибки и отсутствие пользователя дают лимит по умолчанию.
func (s *TrafficService) GetLimit(ctx context.Context, userID string) int64 {
	limit, err := s.repo.GetLimitMB(ctx, userID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			log.Printf("[TrafficService] Ошибка чтения лимита %s, применён лимит по умолчанию: %v", userID, err)
		}
		return DefaultDailyLimitMB
	}
	return limit
}

// GetUsage возвращает расход за текущие сутки UTC. Ошибка — нули.
func (s *TrafficService) GetUsage(ctx context.Context, userID string) *domain.TrafficUsage {
	usage, err := s.repo.GetUsage(ctx, userID, s.now().UTC())
	if err != nil {
		log.Printf("[TrafficService] Ошибка чтения расхода %s: %v", userID, err)
		return &domain.TrafficUsage{}
	}
	return usage
}

// Check решает, укладывается ли запрошенный объём в остаток квоты.
// Любая внутренняя ошибка трактуется в пользу пользователя.
func (s *TrafficService) Check(ctx context.Context, userID string, requestedBytes int64) (allowed bool, reason string, usage *domain.TrafficUsage) {
	usage = s.GetUsage(ctx, userID)

	limitMB := s.GetLimit(ctx, userID)
	if limitMB == 0 {
		return true, "", usage
	}

	limitBytes := limitMB * 1024 * 1024
	if usage.BytesDownloaded+requestedBytes <= limitBytes {
		return true, "", usage
	}

	remainingMB := float64(limitBytes-usage.BytesDownloaded) / (1024 * 1024)
	if remainingMB < 0 {
		remainingMB = 0
	}
	requestedMB := float64(requestedBytes) / (1024 * 1024)

	reason = fmt.Sprintf("traffic limit exceeded: %.1f MB remaining, %.1f MB requested", remainingMB, requestedMB)
	return false, reason, usage
}

// IsAdministrator проверяет админскую роль. Ошибка — не админ.
func (s *TrafficService) IsAdministrator(ctx context.Context, userID string) bool {
	if userID == "" {
		return false
	}
	isAdmin, err := s.repo.IsAdministrator(ctx, userID)
	if err != nil {
		log.Printf("[TrafficService] Ошибка проверки роли %s, доступ без привилегий: %v", userID, err)
		return false
	}
	return isAdmin
}

// Record списывает завершённое скачивание с квоты и пишет аудит.
// Анонимные и нулевые скачивания не учитываются. Ошибки записи
// логируются и глотаются: скачивание уже состоялось.
func (s *TrafficService) Record(ctx context.Context, userID string, estimatedBytes, actualBytes int64, fingerprint, operation string) {
	if userID == "" || estimatedBytes <= 0 {
		return
	}

	if err := s.repo.AddUsage(ctx, userID, s.now().UTC(), estimatedBytes); err != nil {
		log.Printf("[TrafficService] Не удалось списать %d байт с %s: %v", estimatedBytes, userID, err)
	}

	entry := &domain.TrafficLogEntry{
		UserID:         userID,
		Fingerprint:    fingerprint,
		Operation:      operation,
		EstimatedBytes: estimatedBytes,
		ActualBytes:    actualBytes,
	}
	if err := s.repo.AppendLog(ctx, entry); err != nil {
		log.Printf("[TrafficService] Не удалось записать аудит для %s: %v", userID, err)
	}
}

// Status собирает сводку квоты для отдачи пользователю.
func (s *TrafficService) Status(ctx context.Context, userID string) *domain.TrafficStatus {
	usage := s.GetUsage(ctx, userID)
	limitMB := s.GetLimit(ctx, userID)

	status := &domain.TrafficStatus{
		UserID:        userID,
		LimitMB:       limitMB,
		UsedMB:        float64(usage.BytesDownloaded) / (1024 * 1024),
		DownloadCount: usage.DownloadCount,
		IsUnlimited:   limitMB == 0,
	}

	if limitMB > 0 {
		remaining := float64(limitMB) - status.UsedMB
		if remaining < 0 {
			remaining = 0
		}
		status.RemainingMB = &remaining
	}

	return status
}

// Cleanup удаляет учётные строки старше срока хранения.
func (s *TrafficService) Cleanup(ctx context.Context) error {
	cutoff := s.now().UTC().AddDate(0, 0, -RetentionDays)

	deleted, err := s.repo.DeleteUsageBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to clean up traffic records: %w", err)
	}

	if deleted > 0 {
		log.Printf("[TrafficService] Удалено %d устаревших записей трафика", deleted)
	}
	return nil
}
