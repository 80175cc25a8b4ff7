package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"mercuriogate/internal/domain"
)

var (
	classifyCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "download_classify_cache_hits_total",
		Help: "Number of content classifications served from cache.",
	})
	classifyCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "download_classify_cache_misses_total",
		Help: "Number of content classifications resolved from the database.",
	})
)

// Расширения, по которым значение показания распознаётся как путь к файлу.
var filePathExtensions = map[string]bool{
	".pdf": true, ".csv": true, ".json": true,
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
	".mp4": true, ".avi": true, ".mkv": true, ".mov": true, ".wmv": true,
}

var filePathPrefixes = []string{"/", "./", "minio://", "http://", "https://"}

// ClassifySource отдаёт тип данных параметра и образец последнего значения.
type ClassifySource interface {
	ClassifySource(ctx context.Context, parameterID string) (dataType string, sample string, err error)
}

// ContentClassifier определяет природу содержимого параметра до запуска
// стрима. Результаты кэшируются: тип данных параметра меняется редко.
type ContentClassifier struct {
	source ClassifySource
	cache  *expirable.LRU[string, domain.ContentClassification]
}

func NewContentClassifier(source ClassifySource) *ContentClassifier {
	return &ContentClassifier{
		source: source,
		cache:  expirable.NewLRU[string, domain.ContentClassification](1024, nil, 5*time.Minute),
	}
}

// Classify определяет класс содержимого источника скачивания.
// Каналы всегда отдают числовые данные, файловые типы — файлы.
func (c *ContentClassifier) Classify(ctx context.Context, itemType domain.ItemType, itemID string) (domain.ContentClassification, error) {
	switch itemType {
	case domain.ItemTypeChannel:
		return domain.ContentNumericData, nil
	case domain.ItemTypeFile:
		return domain.ContentSingleFile, nil
	case domain.ItemTypeFiles:
		return domain.ContentMultipleFiles, nil
	}

	cacheKey := string(itemType) + ":" + itemID
	if cached, ok := c.cache.Get(cacheKey); ok {
		classifyCacheHits.Inc()
		return cached, nil
	}
	classifyCacheMisses.Inc()

	dataType, sample, err := c.source.ClassifySource(ctx, itemID)
	if err != nil {
		return domain.ContentUnknown, fmt.Errorf("failed to classify parameter %s: %w", itemID, err)
	}

	classification := classifyParameter(dataType, sample)
	c.cache.Add(cacheKey, classification)
	return classification, nil
}

func classifyParameter(dataType, sample string) domain.ContentClassification {
	switch strings.ToLower(dataType) {
	case "file", "image", "video", "document":
		return domain.ContentFilePaths
	case "numeric", "float", "integer", "int", "double":
		return domain.ContentNumericData
	}

	// Тип данных не задан явно — смотрим на само значение. Всё, что не
	// распознано как путь к файлу (включая параметр без показаний),
	// выгружается как смешанное содержимое
	if sample != "" && IsFilePath(sample) {
		return domain.ContentFilePaths
	}
	return domain.ContentMixed
}

// IsFilePath сообщает, похоже ли значение показания на путь к файлу.
func IsFilePath(value string) bool {
	v := strings.TrimSpace(value)
	if v == "" {
		return false
	}

	lower := strings.ToLower(v)
	for _, prefix := range filePathPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return filePathExtensions[filepath.Ext(lower)]
}

// FileTypeOf возвращает грубую категорию файла по расширению.
func FileTypeOf(path string) string {
	switch filepath.Ext(strings.ToLower(path)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return "image"
	case ".mp4", ".avi", ".mkv", ".mov", ".wmv":
		return "video"
	case ".pdf":
		return "pdf"
	case ".csv", ".json":
		return "data"
	default:
		return "other"
	}
}

// AnalyzeValues классифицирует выборку значений целиком: смесь путей и
// чисел трактуется как файловое содержимое, чтобы не отдавать пути
// в числовой экспорт.
func AnalyzeValues(values []string) domain.ContentClassification {
	if len(values) == 0 {
		return domain.ContentUnknown
	}

	var paths, other int
	for _, v := range values {
		if IsFilePath(v) {
			paths++
		} else {
			other++
		}
	}

	switch {
	case paths == 0:
		return domain.ContentNumericData
	case other == 0:
		return domain.ContentFilePaths
	default:
		return domain.ContentMixed
	}
}
