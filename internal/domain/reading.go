package domain

import "time"

// Reading — одно измерение параметра. Значение хранится как текст:
// либо число, либо путь к файлу в объектном хранилище.
type Reading struct {
	TimestampUTC time.Time `db:"timestamp_utc" json:"timestamp_utc"`
	Value        string    `db:"value" json:"value"`
}

// ChannelReading — измерение в разрезе канала (с именем параметра).
type ChannelReading struct {
	TimestampUTC  time.Time `db:"timestamp_utc" json:"timestamp_utc"`
	ParameterName string    `db:"parameter_name" json:"parameter_name"`
	Value         string    `db:"value" json:"value"`
}

// ReadingStats — статистика по периоду, считается на стороне БД
// по всем записям, независимо от downsampling.
type ReadingStats struct {
	Count        int64    `db:"count" json:"count"`
	NumericCount int64    `db:"numeric_count" json:"numeric_count"`
	Min          *float64 `db:"min_val" json:"min"`
	Max          *float64 `db:"max_val" json:"max"`
	Avg          *float64 `db:"avg_val" json:"avg"`
}
