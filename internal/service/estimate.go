package service

import (
	"context"
	"log"
	"time"

	"mercuriogate/internal/domain"
	"mercuriogate/internal/service/s3"
)

const (
	// Средний размер строки CSV-экспорта одного показания.
	bytesPerExportRecord = 150
	// Строка выгрузки канала короче: значение без служебных полей.
	bytesPerChannelRecord = 100

	// Фолбэки, когда точный размер узнать не удалось.
	fallbackCountErrorBytes = 1 * 1024 * 1024
	fallbackUnknownBytes    = 5 * 1024 * 1024
	minimumEstimateBytes    = 1024

	// Zip с типичным содержимым сенсоров сжимается слабо.
	zipCompressionFactor = 0.8
)

// Эвристики размера объекта по расширению, когда S3 недоступен.
var extensionSizeHints = map[string]int64{
	"image": 2 * 1024 * 1024,
	"pdf":   5 * 1024 * 1024,
	"video": 50 * 1024 * 1024,
	"other": 1 * 1024 * 1024,
}

// EstimateSource отдаёт количество показаний в запрошенном окне.
type EstimateSource interface {
	CountParameterReadings(ctx context.Context, parameterID string, start, end time.Time) (int64, error)
	CountChannelReadings(ctx context.Context, channelID string, start, end time.Time) (int64, error)
}

// SizeEstimator предсказывает размер скачивания до его запуска.
// Оценка всегда возвращается: любая внутренняя ошибка заменяется
// консервативным фолбэком, чтобы не блокировать скачивание.
type SizeEstimator struct {
	source EstimateSource
	store  s3.Storage
}

func NewSizeEstimator(source EstimateSource, store s3.Storage) *SizeEstimator {
	return &SizeEstimator{source: source, store: store}
}

// Estimate возвращает ожидаемый размер выгрузки в байтах. Никогда не
// возвращает ошибку и никогда не отдаёт меньше minimumEstimateBytes.
func (e *SizeEstimator) Estimate(ctx context.Context, req *domain.DownloadRequest, classification domain.ContentClassification, headerLen int) int64 {
	var estimate int64

	switch classification {
	case domain.ContentNumericData, domain.ContentFilePaths:
		estimate = e.estimateExport(ctx, req) + int64(headerLen)
	case domain.ContentSingleFile:
		estimate = e.estimateObject(ctx, req.FilePath)
	case domain.ContentMultipleFiles:
		estimate = e.estimateZip(ctx, req.FilePaths)
	default:
		estimate = fallbackUnknownBytes
	}

	if estimate < minimumEstimateBytes {
		estimate = minimumEstimateBytes
	}
	return estimate
}

func (e *SizeEstimator) estimateExport(ctx context.Context, req *domain.DownloadRequest) int64 {
	var (
		count     int64
		err       error
		perRecord int64 = bytesPerExportRecord
	)

	if req.ItemType == domain.ItemTypeChannel {
		count, err = e.source.CountChannelReadings(ctx, req.ItemID, req.StartDate, req.EndDate)
		perRecord = bytesPerChannelRecord
	} else {
		count, err = e.source.CountParameterReadings(ctx, req.ItemID, req.StartDate, req.EndDate)
	}
	if err != nil {
		log.Printf("[SizeEstimator] Не удалось посчитать показания %s/%s: %v", req.ItemType, req.ItemID, err)
		return fallbackCountErrorBytes
	}

	return count * perRecord
}

func (e *SizeEstimator) estimateObject(ctx context.Context, path string) int64 {
	size, err := e.store.Stat(ctx, path)
	if err == nil {
		return size
	}

	// Размер не узнать (включая отсутствие объекта) — оцениваем по
	// расширению, точный 404 отдаст генератор потока
	log.Printf("[SizeEstimator] Stat %s не удался, оценка по расширению: %v", path, err)
	if hint, ok := extensionSizeHints[FileTypeOf(path)]; ok {
		return hint
	}
	return extensionSizeHints["other"]
}

func (e *SizeEstimator) estimateZip(ctx context.Context, paths []string) int64 {
	var total int64
	for _, path := range paths {
		total += e.estimateObject(ctx, path)
	}
	return int64(float64(total) * zipCompressionFactor)
}
