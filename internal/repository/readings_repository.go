package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"mercuriogate/internal/domain"
)

type ReadingsRepository struct {
	db *sqlx.DB
}

func NewReadingsRepository(db *sqlx.DB) *ReadingsRepository {
	return &ReadingsRepository{db: db}
}

// parseID разбирает числовой идентификатор из URL. Нечисловой
// идентификатор эквивалентен отсутствующей записи.
func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q: %w", raw, ErrNotFound)
	}
	return id, nil
}

// GetParameterInfo возвращает параметр вместе со всей иерархией.
func (r *ReadingsRepository) GetParameterInfo(ctx context.Context, parameterID string) (*domain.ParameterInfo, error) {
	id, err := parseID(parameterID)
	if err != nil {
		return nil, err
	}

	var info domain.ParameterInfo

	query := `
        SELECT
            p.parameter_id, p.name, p.code AS parameter_code,
            COALESCE(p.unit, '') AS unit, p.data_type,
            c.name AS channel_name, c.code AS channel_code,
            i.name AS item_name, i.code AS item_code,
            a.name AS area_name, a.code AS area_code,
            s.name AS scenario_name, s.code AS scenario_code
        FROM parameters p
        JOIN channels c ON p.channel_id = c.channel_id
        JOIN items i ON c.item_id = i.item_id
        JOIN areas a ON i.area_id = a.area_id
        JOIN scenarios s ON a.scenario_id = s.scenario_id
        WHERE p.parameter_id = $1`

	err = r.db.GetContext(ctx, &info, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get parameter info: %w", err)
	}

	return &info, nil
}

// GetChannelInfo возвращает канал с количеством параметров.
func (r *ReadingsRepository) GetChannelInfo(ctx context.Context, channelID string) (*domain.ChannelInfo, error) {
	id, err := parseID(channelID)
	if err != nil {
		return nil, err
	}

	var info domain.ChannelInfo

	query := `
        SELECT
            c.channel_id, c.name AS channel_name, c.code AS channel_code,
            COALESCE(c.description, '') AS description,
            i.name AS item_name, i.code AS item_code,
            a.name AS area_name, a.code AS area_code,
            s.name AS scenario_name, s.code AS scenario_code,
            COUNT(DISTINCT p.parameter_id) AS parameter_count
        FROM channels c
        JOIN items i ON c.item_id = i.item_id
        JOIN areas a ON i.area_id = a.area_id
        JOIN scenarios s ON a.scenario_id = s.scenario_id
        LEFT JOIN parameters p ON c.channel_id = p.channel_id
        WHERE c.channel_id = $1
        GROUP BY c.channel_id, c.name, c.code, c.description,
                 i.name, i.code, a.name, a.code, s.name, s.code`

	err = r.db.GetContext(ctx, &info, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get channel info: %w", err)
	}

	return &info, nil
}

// GetChannelParameters возвращает список параметров канала.
func (r *ReadingsRepository) GetChannelParameters(ctx context.Context, channelID string) ([]domain.ParameterRef, error) {
	id, err := parseID(channelID)
	if err != nil {
		return nil, err
	}

	var params []domain.ParameterRef

	query := `
        SELECT parameter_id, name, data_type
        FROM parameters
        WHERE channel_id = $1
        ORDER BY name`

	if err := r.db.SelectContext(ctx, &params, query, id); err != nil {
		return nil, fmt.Errorf("failed to get channel parameters: %w", err)
	}

	return params, nil
}

// GetChannelParameterCounts возвращает числовые параметры канала с числом
// записей за период (для информационного заголовка экспорта).
func (r *ReadingsRepository) GetChannelParameterCounts(ctx context.Context, channelID string, start, end time.Time) ([]domain.ParameterRecordCount, error) {
	id, err := parseID(channelID)
	if err != nil {
		return nil, err
	}

	var counts []domain.ParameterRecordCount

	query := `
        SELECT p.name, COALESCE(p.unit, '') AS unit, COUNT(rd.reading_id) AS record_count
        FROM parameters p
        LEFT JOIN readings rd ON p.parameter_id = rd.parameter_id
            AND rd.timestamp_utc BETWEEN $1 AND $2
        WHERE p.channel_id = $3 AND p.data_type = 'numeric'
        GROUP BY p.parameter_id, p.name, p.unit
        ORDER BY p.name`

	if err := r.db.SelectContext(ctx, &counts, query, start, end, id); err != nil {
		return nil, fmt.Errorf("failed to get channel parameter counts: %w", err)
	}

	return counts, nil
}

// ClassifySource возвращает объявленный тип данных параметра и одно
// непустое значение-образец для определения формы содержимого.
func (r *ReadingsRepository) ClassifySource(ctx context.Context, parameterID string) (string, string, error) {
	id, err := parseID(parameterID)
	if err != nil {
		return "", "", err
	}

	var row struct {
		DataType    string `db:"data_type"`
		SampleValue string `db:"sample_value"`
	}

	query := `
        SELECT p.data_type,
               COALESCE((SELECT r2.value
                         FROM readings r2
                         WHERE r2.parameter_id = p.parameter_id
                           AND r2.value IS NOT NULL
                         LIMIT 1), '') AS sample_value
        FROM parameters p
        WHERE p.parameter_id = $1`

	err = r.db.GetContext(ctx, &row, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", "", ErrNotFound
		}
		return "", "", fmt.Errorf("failed to classify parameter source: %w", err)
	}

	return row.DataType, row.SampleValue, nil
}

// CountParameterReadings считает записи по тому же предикату, что и
// экспортный запрос, не извлекая данные.
func (r *ReadingsRepository) CountParameterReadings(ctx context.Context, parameterID string, start, end time.Time) (int64, error) {
	id, err := parseID(parameterID)
	if err != nil {
		return 0, err
	}

	var count int64

	query := `
        SELECT COUNT(*)
        FROM readings r
        WHERE r.parameter_id = $1
          AND r.timestamp_utc >= $2
          AND r.timestamp_utc <= $3
          AND r.value IS NOT NULL`

	if err := r.db.GetContext(ctx, &count, query, id, start, end); err != nil {
		return 0, fmt.Errorf("failed to count parameter readings: %w", err)
	}

	return count, nil
}

// CountChannelReadings считает записи всех числовых параметров канала.
func (r *ReadingsRepository) CountChannelReadings(ctx context.Context, channelID string, start, end time.Time) (int64, error) {
	id, err := parseID(channelID)
	if err != nil {
		return 0, err
	}

	var count int64

	query := `
        SELECT COUNT(*)
        FROM readings r
        JOIN parameters p ON r.parameter_id = p.parameter_id
        WHERE p.channel_id = $1
          AND r.timestamp_utc BETWEEN $2 AND $3
          AND r.value IS NOT NULL`

	if err := r.db.GetContext(ctx, &count, query, id, start, end); err != nil {
		return 0, fmt.Errorf("failed to count channel readings: %w", err)
	}

	return count, nil
}

// GetReadings возвращает сырые записи без прореживания.
func (r *ReadingsRepository) GetReadings(ctx context.Context, parameterID string, start, end time.Time, limit int) ([]domain.Reading, error) {
	id, err := parseID(parameterID)
	if err != nil {
		return nil, err
	}

	var readings []domain.Reading

	query := `
        SELECT r.timestamp_utc, r.value
        FROM readings r
        WHERE r.parameter_id = $1
          AND r.timestamp_utc >= $2
          AND r.timestamp_utc <= $3
          AND r.value IS NOT NULL
        ORDER BY r.timestamp_utc DESC
        LIMIT $4`

	if err := r.db.SelectContext(ctx, &readings, query, id, start, end, limit); err != nil {
		return nil, fmt.Errorf("failed to get readings: %w", err)
	}

	return readings, nil
}

// GetDownsampledReadings возвращает min/max огибающую: период делится на
// равные по длительности корзины, из каждой остаются только минимум и
// максимум. Экстремумы для графика сохраняются при ограниченном объёме.
func (r *ReadingsRepository) GetDownsampledReadings(ctx context.Context, parameterID string, start, end time.Time, numBuckets int) ([]domain.Reading, error) {
	id, err := parseID(parameterID)
	if err != nil {
		return nil, err
	}

	if numBuckets < 1 {
		numBuckets = 1
	}

	intervalSeconds := end.Sub(start).Seconds() / float64(numBuckets)
	if intervalSeconds < 1 {
		intervalSeconds = 1
	}

	var readings []domain.Reading

	query := `
        WITH buckets AS (
            SELECT r.timestamp_utc, r.value,
                   floor(extract(epoch FROM r.timestamp_utc) / $1) AS bucket_id
            FROM readings r
            WHERE r.parameter_id = $2
              AND r.timestamp_utc >= $3
              AND r.timestamp_utc <= $4
              AND r.value IS NOT NULL
        ),
        min_max_points AS (
            (SELECT DISTINCT ON (bucket_id) timestamp_utc, value FROM buckets ORDER BY bucket_id, value ASC)
            UNION ALL
            (SELECT DISTINCT ON (bucket_id) timestamp_utc, value FROM buckets ORDER BY bucket_id, value DESC)
        )
        SELECT timestamp_utc, value FROM min_max_points ORDER BY timestamp_utc ASC`

	if err := r.db.SelectContext(ctx, &readings, query, intervalSeconds, id, start, end); err != nil {
		return nil, fmt.Errorf("failed to get downsampled readings: %w", err)
	}

	return readings, nil
}

// GetReadingStats считает статистику по всем записям периода. Нечисловые
// значения отфильтровываются по регулярному выражению на стороне БД.
func (r *ReadingsRepository) GetReadingStats(ctx context.Context, parameterID string, start, end time.Time) (*domain.ReadingStats, error) {
	id, err := parseID(parameterID)
	if err != nil {
		return nil, err
	}

	var stats domain.ReadingStats

	query := `
        WITH numeric_values AS (
            SELECT
                CASE
                    WHEN value ~ '^-?[0-9]+\.?[0-9]*$' THEN CAST(value AS FLOAT)
                    WHEN value ~ '^-?[0-9]*\.[0-9]+$' THEN CAST(value AS FLOAT)
                    ELSE NULL
                END AS numeric_value
            FROM readings
            WHERE parameter_id = $1
              AND timestamp_utc >= $2
              AND timestamp_utc <= $3
              AND value IS NOT NULL
        )
        SELECT
            COUNT(*) AS count,
            COUNT(numeric_value) AS numeric_count,
            MIN(numeric_value) AS min_val,
            MAX(numeric_value) AS max_val,
            AVG(numeric_value) AS avg_val
        FROM numeric_values`

	if err := r.db.GetContext(ctx, &stats, query, id, start, end); err != nil {
		return nil, fmt.Errorf("failed to get reading stats: %w", err)
	}

	return &stats, nil
}

// GetTableReadings возвращает страницу сырых записей для табличного вида.
func (r *ReadingsRepository) GetTableReadings(ctx context.Context, parameterID string, start, end time.Time, limit, offset int) ([]domain.Reading, error) {
	id, err := parseID(parameterID)
	if err != nil {
		return nil, err
	}

	var readings []domain.Reading

	query := `
        SELECT timestamp_utc, value
        FROM readings
        WHERE parameter_id = $1
          AND timestamp_utc BETWEEN $2 AND $3
        ORDER BY timestamp_utc DESC
        LIMIT $4 OFFSET $5`

	if err := r.db.SelectContext(ctx, &readings, query, id, start, end, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to get table readings: %w", err)
	}

	return readings, nil
}

// CountTableReadings считает все записи периода (включая NULL-значения),
// для пагинации табличного вида.
func (r *ReadingsRepository) CountTableReadings(ctx context.Context, parameterID string, start, end time.Time) (int64, error) {
	id, err := parseID(parameterID)
	if err != nil {
		return 0, err
	}

	var count int64

	query := `
        SELECT COUNT(*)
        FROM readings
        WHERE parameter_id = $1
          AND timestamp_utc BETWEEN $2 AND $3`

	if err := r.db.GetContext(ctx, &count, query, id, start, end); err != nil {
		return 0, fmt.Errorf("failed to count table readings: %w", err)
	}

	return count, nil
}

// fileTypeExtensions — расширения по категориям для фильтра файловых записей.
var fileTypeExtensions = map[string][]string{
	"image": {"jpg", "jpeg", "png", "gif", "webp"},
	"pdf":   {"pdf"},
	"csv":   {"csv"},
	"json":  {"json"},
	"video": {"mp4", "avi", "mkv", "mov", "wmv"},
}

func fileTypeCondition(fileType string) string {
	exts, ok := fileTypeExtensions[fileType]
	if !ok {
		return ""
	}
	conditions := make([]string, 0, len(exts))
	for _, ext := range exts {
		conditions = append(conditions, fmt.Sprintf("value ILIKE '%%.%s'", ext))
	}
	return " AND (" + strings.Join(conditions, " OR ") + ")"
}

// GetFileReadings возвращает страницу файловых записей с необязательным
// фильтром по категории (image, pdf, csv, json, video).
func (r *ReadingsRepository) GetFileReadings(ctx context.Context, parameterID string, start, end time.Time, fileType string, limit, offset int) ([]domain.Reading, error) {
	id, err := parseID(parameterID)
	if err != nil {
		return nil, err
	}

	var readings []domain.Reading

	query := `
        SELECT timestamp_utc, value
        FROM readings
        WHERE parameter_id = $1
          AND timestamp_utc >= $2
          AND timestamp_utc <= $3
          AND value IS NOT NULL`
	query += fileTypeCondition(fileType)
	query += `
        ORDER BY timestamp_utc DESC
        LIMIT $4 OFFSET $5`

	if err := r.db.SelectContext(ctx, &readings, query, id, start, end, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to get file readings: %w", err)
	}

	return readings, nil
}

// CountFileReadings считает файловые записи периода с тем же фильтром.
func (r *ReadingsRepository) CountFileReadings(ctx context.Context, parameterID string, start, end time.Time, fileType string) (int64, error) {
	id, err := parseID(parameterID)
	if err != nil {
		return 0, err
	}

	var count int64

	query := `
        SELECT COUNT(*)
        FROM readings
        WHERE parameter_id = $1
          AND timestamp_utc >= $2
          AND timestamp_utc <= $3
          AND value IS NOT NULL`
	query += fileTypeCondition(fileType)

	if err := r.db.GetContext(ctx, &count, query, id, start, end); err != nil {
		return 0, fmt.Errorf("failed to count file readings: %w", err)
	}

	return count, nil
}

// StreamParameterReadings отдаёт записи параметра по одной через колбэк,
// не материализуя весь результат. Курсор закрывается при ошибке колбэка.
func (r *ReadingsRepository) StreamParameterReadings(ctx context.Context, parameterID string, start, end time.Time, fn func(domain.Reading) error) error {
	id, err := parseID(parameterID)
	if err != nil {
		return err
	}

	query := `
        SELECT r.timestamp_utc, r.value
        FROM readings r
        WHERE r.parameter_id = $1
          AND r.timestamp_utc BETWEEN $2 AND $3
          AND r.value IS NOT NULL
        ORDER BY r.timestamp_utc DESC`

	rows, err := r.db.QueryxContext(ctx, query, id, start, end)
	if err != nil {
		return fmt.Errorf("failed to query parameter readings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var reading domain.Reading
		if err := rows.StructScan(&reading); err != nil {
			return fmt.Errorf("failed to scan reading: %w", err)
		}
		if err := fn(reading); err != nil {
			return err
		}
	}

	return rows.Err()
}

// StreamChannelReadings отдаёт записи всех числовых параметров канала
// в длинном формате (timestamp, parameter_name, value).
func (r *ReadingsRepository) StreamChannelReadings(ctx context.Context, channelID string, start, end time.Time, fn func(domain.ChannelReading) error) error {
	id, err := parseID(channelID)
	if err != nil {
		return err
	}

	query := `
        SELECT r.timestamp_utc, p.name AS parameter_name, r.value
        FROM readings r
        JOIN parameters p ON r.parameter_id = p.parameter_id
        WHERE p.channel_id = $1
          AND r.timestamp_utc BETWEEN $2 AND $3
          AND p.data_type = 'numeric'
          AND r.value IS NOT NULL
        ORDER BY r.timestamp_utc DESC, p.name`

	rows, err := r.db.QueryxContext(ctx, query, id, start, end)
	if err != nil {
		return fmt.Errorf("failed to query channel readings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var reading domain.ChannelReading
		if err := rows.StructScan(&reading); err != nil {
			return fmt.Errorf("failed to scan channel reading: %w", err)
		}
		if err := fn(reading); err != nil {
			return err
		}
	}

	return rows.Err()
}
