package domain

import "time"

// TrafficUsage — накопленный трафик пользователя за календарные сутки (UTC).
type TrafficUsage struct {
	BytesDownloaded int64 `db:"bytes_downloaded" json:"bytes_downloaded"`
	DownloadCount   int64 `db:"download_count" json:"download_count"`
}

// TrafficStatus — полный статус трафика для фронтенда.
type TrafficStatus struct {
	UserID        string   `json:"user_id"`
	LimitMB       int64    `json:"limit_mb"`
	UsedMB        float64  `json:"used_mb"`
	RemainingMB   *float64 `json:"remaining_mb"`
	DownloadCount int64    `json:"download_count"`
	IsUnlimited   bool     `json:"is_unlimited"`
}

// TrafficLogEntry — необязательная запись аудита по одному скачиванию,
// связана с дедупликацией общим отпечатком запроса.
type TrafficLogEntry struct {
	UserID         string    `db:"user_id"`
	Fingerprint    string    `db:"fingerprint"`
	Operation      string    `db:"operation"`
	EstimatedBytes int64     `db:"estimated_bytes"`
	ActualBytes    int64     `db:"actual_bytes"`
	CreatedAt      time.Time `db:"created_at"`
}
