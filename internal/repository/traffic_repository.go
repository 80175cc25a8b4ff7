package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"

	"mercuriogate/internal/domain"
)

type TrafficRepository struct {
	db *sqlx.DB
}

func NewTrafficRepository(db *sqlx.DB) *TrafficRepository {
	return &TrafficRepository{db: db}
}

// GetLimitMB возвращает суточный лимит пользователя в мегабайтах.
// ErrNotFound — пользователь отсутствует в таблице users.
func (r *TrafficRepository) GetLimitMB(ctx context.Context, userID string) (int64, error) {
	var limit sql.NullInt64

	query := `SELECT daily_traffic_limit_mb FROM users WHERE user_id = $1`

	err := r.db.GetContext(ctx, &limit, query, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to get traffic limit: %w", err)
	}

	if !limit.Valid {
		return 0, ErrNotFound
	}

	return limit.Int64, nil
}

// GetUsage возвращает накопленный трафик за календарные сутки.
// Отсутствие строки — не ошибка: возвращаются нули.
func (r *TrafficRepository) GetUsage(ctx context.Context, userID string, day time.Time) (*domain.TrafficUsage, error) {
	var usage domain.TrafficUsage

	query := `
        SELECT bytes_downloaded, download_count
        FROM user_daily_traffic
        WHERE user_id = $1 AND traffic_date = $2`

	err := r.db.GetContext(ctx, &usage, query, userID, day.UTC().Format("2006-01-02"))
	if err != nil {
		if err == sql.ErrNoRows {
			return &domain.TrafficUsage{}, nil
		}
		return nil, fmt.Errorf("failed to get traffic usage: %w", err)
	}

	return &usage, nil
}

// AddUsage инкрементирует суточный счётчик пользователя. Upsert: новый
// календарный день начинает новую строку, конфликт по (user_id, date)
// разрешается инкрементом на месте.
func (r *TrafficRepository) AddUsage(ctx context.Context, userID string, day time.Time, bytes int64) error {
	query := `
        INSERT INTO user_daily_traffic (user_id, traffic_date, bytes_downloaded, download_count, last_updated)
        VALUES ($1, $2, $3, 1, NOW())
        ON CONFLICT (user_id, traffic_date)
        DO UPDATE SET
            bytes_downloaded = user_daily_traffic.bytes_downloaded + EXCLUDED.bytes_downloaded,
            download_count = user_daily_traffic.download_count + 1,
            last_updated = NOW()`

	_, err := r.db.ExecContext(ctx, query, userID, day.UTC().Format("2006-01-02"), bytes)
	if err != nil {
		return fmt.Errorf("failed to update traffic usage: %w", err)
	}

	return nil
}

// IsAdministrator проверяет членство пользователя в роли administrator.
func (r *TrafficRepository) IsAdministrator(ctx context.Context, userID string) (bool, error) {
	var count int64

	query := `
        SELECT COUNT(*)
        FROM users u
        JOIN user_roles ur ON u.user_id = ur.user_id
        JOIN roles ro ON ur.role_id = ro.role_id
        WHERE u.user_id = $1 AND ro.name = 'administrator'`

	if err := r.db.GetContext(ctx, &count, query, userID); err != nil {
		return false, fmt.Errorf("failed to check administrator role: %w", err)
	}

	return count > 0, nil
}

// AppendLog добавляет запись аудита по одному скачиванию.
func (r *TrafficRepository) AppendLog(ctx context.Context, entry *domain.TrafficLogEntry) error {
	query := `
        INSERT INTO user_traffic_log (user_id, fingerprint, operation, estimated_bytes, actual_bytes, created_at)
        VALUES ($1, $2, $3, $4, $5, NOW())`

	_, err := r.db.ExecContext(ctx, query,
		entry.UserID,
		entry.Fingerprint,
		entry.Operation,
		entry.EstimatedBytes,
		entry.ActualBytes,
	)
	if err != nil {
		return fmt.Errorf("failed to append traffic log: %w", err)
	}

	return nil
}

// DeleteUsageBefore удаляет строки учёта и аудита старше cutoff.
func (r *TrafficRepository) DeleteUsageBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoffDate := cutoff.UTC().Format("2006-01-02")

	result, err := r.db.ExecContext(ctx,
		`DELETE FROM user_daily_traffic WHERE traffic_date < $1`, cutoffDate)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old traffic rows: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM user_traffic_log WHERE created_at < $1`, cutoff.UTC()); err != nil {
		// Аудит вторичен, учётные строки уже удалены
		log.Printf("[TrafficRepository] Ошибка очистки журнала аудита: %v", err)
	}

	return rows, nil
}
