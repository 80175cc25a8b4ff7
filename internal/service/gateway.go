package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"mercuriogate/internal/domain"
	"mercuriogate/internal/repository"
	"mercuriogate/internal/service/s3"
)

var (
	downloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "download_requests_total",
		Help: "Download requests by outcome.",
	}, []string{"status"})
	downloadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "download_bytes_total",
		Help: "Total bytes streamed to clients.",
	})
	activeDownloads = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "download_active",
		Help: "Downloads currently streaming.",
	})
	downloadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "download_duration_seconds",
		Help:    "Wall time of completed downloads.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})
)

const timestampLayout = "2006-01-02 15:04:05"

// ReadingsStore — всё, что шлюзу нужно от хранилища показаний.
type ReadingsStore interface {
	EstimateSource
	ClassifySource
	GetParameterInfo(ctx context.Context, parameterID string) (*domain.ParameterInfo, error)
	GetChannelInfo(ctx context.Context, channelID string) (*domain.ChannelInfo, error)
	GetChannelParameterCounts(ctx context.Context, channelID string, start, end time.Time) ([]domain.ParameterRecordCount, error)
	StreamParameterReadings(ctx context.Context, parameterID string, start, end time.Time, fn func(domain.Reading) error) error
	StreamChannelReadings(ctx context.Context, channelID string, start, end time.Time, fn func(domain.ChannelReading) error) error
}

// Gateway проводит каждое скачивание через единый конвейер: отпечаток и
// дедупликация, классификация содержимого, оценка размера, проверка
// квоты, запуск потока, списание трафика.
type Gateway struct {
	dedup      *Deduplicator
	classifier *ContentClassifier
	estimator  *SizeEstimator
	traffic    *TrafficService
	streams    *StreamService
	readings   ReadingsStore
}

func NewGateway(dedup *Deduplicator, classifier *ContentClassifier, estimator *SizeEstimator, traffic *TrafficService, streams *StreamService, readings ReadingsStore) *Gateway {
	return &Gateway{
		dedup:      dedup,
		classifier: classifier,
		estimator:  estimator,
		traffic:    traffic,
		streams:    streams,
		readings:   readings,
	}
}

// Download выполняет конвейер для одного запроса скачивания.
func (g *Gateway) Download(w http.ResponseWriter, r *http.Request, req *domain.DownloadRequest) {
	requestID := uuid.NewString()
	start := time.Now()
	ctx := r.Context()

	fingerprint := Fingerprint(req.UserID, "download", r)

	if !g.dedup.Begin(fingerprint) {
		log.Printf("[Gateway] %s: дубликат запроса отклонён (fp=%.12s)", requestID, fingerprint)
		downloadsTotal.WithLabelValues("duplicate").Inc()
		w.Header().Set("Retry-After", "30")
		respondJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":       "duplicate_download",
			"message":     "identical download is already in progress, please wait",
			"retry_after": 30,
		})
		return
	}
	defer g.dedup.End(fingerprint)

	classification, err := g.classifier.Classify(ctx, req.ItemType, req.ItemID)
	if err != nil {
		log.Printf("[Gateway] %s: ошибка классификации %s/%s: %v", requestID, req.ItemType, req.ItemID, err)
		if errors.Is(err, repository.ErrNotFound) {
			downloadsTotal.WithLabelValues("not_found").Inc()
			respondJSON(w, http.StatusNotFound, map[string]any{
				"error":   "item_not_found",
				"message": "requested item does not exist",
			})
			return
		}
		downloadsTotal.WithLabelValues("error").Inc()
		respondJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   "classification_failed",
			"message": "failed to determine content type",
		})
		return
	}

	switch classification {
	case domain.ContentUnknown:
		downloadsTotal.WithLabelValues("bad_request").Inc()
		respondJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "unknown_content",
			"message": "content type of the requested item could not be determined",
		})
		return
	case domain.ContentMixed:
		// Смешанное содержимое выгружается как список путей
		classification = domain.ContentFilePaths
	}

	header := g.buildHeader(ctx, req, classification)
	estimated := g.estimator.Estimate(ctx, req, classification, len(header))

	isAdmin := g.traffic.IsAdministrator(ctx, req.UserID)
	if req.UserID != "" && !isAdmin {
		allowed, reason, usage := g.traffic.Check(ctx, req.UserID, estimated)
		if !allowed {
			log.Printf("[Gateway] %s: квота исчерпана для %s: %s", requestID, req.UserID, reason)
			downloadsTotal.WithLabelValues("quota_rejected").Inc()
			respondJSON(w, http.StatusTooManyRequests, map[string]any{
				"error":          "traffic_limit_exceeded",
				"message":        reason,
				"usage_mb":       float64(usage.BytesDownloaded) / (1024 * 1024),
				"limit_mb":       g.traffic.GetLimit(ctx, req.UserID),
				"download_count": usage.DownloadCount,
				"reset_time":     "midnight UTC",
			})
			return
		}
	}

	activeDownloads.Inc()
	defer activeDownloads.Dec()

	written, err := g.dispatchSafe(ctx, w, req, classification, header, requestID)
	if err != nil {
		if errors.Is(err, s3.ErrObjectNotFound) {
			downloadsTotal.WithLabelValues("not_found").Inc()
			respondJSON(w, http.StatusNotFound, map[string]any{
				"error":   "file_not_found",
				"message": "requested file does not exist in storage",
			})
			return
		}
		log.Printf("[Gateway] %s: скачивание прервано после %d байт: %v", requestID, written, err)
		downloadsTotal.WithLabelValues("error").Inc()
		if written == 0 {
			respondJSON(w, http.StatusInternalServerError, map[string]any{
				"error":   "download_failed",
				"message": "failed to produce download stream",
			})
			return
		}
		// Частично отданный поток всё равно списывается с квоты ниже
	}

	g.traffic.Record(ctx, req.UserID, estimated, written, fingerprint, "download")

	downloadsTotal.WithLabelValues("ok").Inc()
	downloadBytesTotal.Add(float64(written))
	downloadDuration.Observe(time.Since(start).Seconds())

	log.Printf("[Gateway] %s: %s/%s отдано %d байт (оценка %d) за %v",
		requestID, req.ItemType, req.ItemID, written, estimated, time.Since(start))
}

// dispatchSafe запускает генератор потока с одной страховочной повторной
// попыткой: паника до первого байта ответа не должна ронять запрос.
func (g *Gateway) dispatchSafe(ctx context.Context, w http.ResponseWriter, req *domain.DownloadRequest, classification domain.ContentClassification, header, requestID string) (written int64, err error) {
	cw := &countingResponseWriter{ResponseWriter: w}

	written, err = g.dispatchRecover(ctx, cw, req, classification, header)
	if err == nil || cw.written > 0 {
		return cw.written, err
	}

	var pe *panicError
	if !errors.As(err, &pe) {
		return cw.written, err
	}

	// Ответ ещё не начат — одна повторная попытка без обвязки
	log.Printf("[Gateway] %s: паника в генераторе, повторная попытка: %v", requestID, pe.value)
	written, err = g.dispatch(ctx, cw, req, classification, header)
	return cw.written, err
}

type panicError struct{ value any }

func (e *panicError) Error() string { return fmt.Sprintf("stream generator panic: %v", e.value) }

func (g *Gateway) dispatchRecover(ctx context.Context, w http.ResponseWriter, req *domain.DownloadRequest, classification domain.ContentClassification, header string) (written int64, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &panicError{value: v}
		}
	}()
	return g.dispatch(ctx, w, req, classification, header)
}

func (g *Gateway) dispatch(ctx context.Context, w http.ResponseWriter, req *domain.DownloadRequest, classification domain.ContentClassification, header string) (int64, error) {
	switch classification {
	case domain.ContentSingleFile:
		return g.streams.StreamObject(ctx, w, req.FilePath, false)

	case domain.ContentMultipleFiles:
		return g.streams.StreamZip(ctx, w, req.FilePaths, req.ZipName)

	case domain.ContentFilePaths:
		exp := &CSVExport{
			Filename: exportFilename(req, "files"),
			Header:   header,
			Columns:  []string{"timestamp_utc", "file_path"},
			Rows: func(ctx context.Context, fn func(record []string) error) error {
				return g.readings.StreamParameterReadings(ctx, req.ItemID, req.StartDate, req.EndDate, func(rd domain.Reading) error {
					return fn([]string{rd.TimestampUTC.Format(timestampLayout), rd.Value})
				})
			},
		}
		return g.streams.StreamCSV(ctx, w, exp)

	case domain.ContentNumericData:
		if req.ItemType == domain.ItemTypeChannel {
			exp := &CSVExport{
				Filename: exportFilename(req, "full"),
				Header:   header,
				Columns:  []string{"timestamp_utc", "parameter_name", "value"},
				Rows: func(ctx context.Context, fn func(record []string) error) error {
					return g.readings.StreamChannelReadings(ctx, req.ItemID, req.StartDate, req.EndDate, func(rd domain.ChannelReading) error {
						return fn([]string{rd.TimestampUTC.Format(timestampLayout), rd.ParameterName, rd.Value})
					})
				},
			}
			return g.streams.StreamCSV(ctx, w, exp)
		}

		exp := &CSVExport{
			Filename: exportFilename(req, "full"),
			Header:   header,
			Columns:  []string{"timestamp_utc", "value"},
			Rows: func(ctx context.Context, fn func(record []string) error) error {
				return g.readings.StreamParameterReadings(ctx, req.ItemID, req.StartDate, req.EndDate, func(rd domain.Reading) error {
					return fn([]string{rd.TimestampUTC.Format(timestampLayout), rd.Value})
				})
			},
		}
		return g.streams.StreamCSV(ctx, w, exp)
	}

	return 0, fmt.Errorf("no stream generator for classification %s", classification)
}

// buildHeader собирает описательную шапку CSV-выгрузки. Любая ошибка
// деградирует до минимальной шапки: выгрузка важнее метаданных.
func (g *Gateway) buildHeader(ctx context.Context, req *domain.DownloadRequest, classification domain.ContentClassification) string {
	switch classification {
	case domain.ContentFilePaths:
		return fmt.Sprintf("# Export File Paths - Parameter ID: %s\n# Period: %s - %s\n\n",
			req.ItemID,
			req.StartDate.Format(timestampLayout),
			req.EndDate.Format(timestampLayout))

	case domain.ContentNumericData:
		if req.ItemType == domain.ItemTypeChannel {
			return g.buildChannelHeader(ctx, req)
		}
		return g.buildParameterHeader(ctx, req)
	}
	return ""
}

func (g *Gateway) buildParameterHeader(ctx context.Context, req *domain.DownloadRequest) string {
	info, err := g.readings.GetParameterInfo(ctx, req.ItemID)
	if err != nil {
		log.Printf("[Gateway] Шапка без иерархии для параметра %s: %v", req.ItemID, err)
		return fmt.Sprintf("Parameter ID,\"%s\"\nPeriod,\"%s - %s\"\n\n",
			req.ItemID,
			req.StartDate.Format(timestampLayout),
			req.EndDate.Format(timestampLayout))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Scenario Name,%q\n", info.ScenarioName)
	fmt.Fprintf(&sb, "Area Name,%q\n", info.AreaName)
	fmt.Fprintf(&sb, "Item Name,%q\n", info.ItemName)
	fmt.Fprintf(&sb, "Channel Name,%q\n", info.ChannelName)
	fmt.Fprintf(&sb, "Parameter Name,%q\n", info.Name)
	if info.Unit != "" {
		fmt.Fprintf(&sb, "Unit,%q\n", info.Unit)
	}
	fmt.Fprintf(&sb, "Period,\"%s - %s\"\n", req.StartDate.Format(timestampLayout), req.EndDate.Format(timestampLayout))
	fmt.Fprintf(&sb, "Exported At,%q\n\n", time.Now().UTC().Format(timestampLayout))
	return sb.String()
}

func (g *Gateway) buildChannelHeader(ctx context.Context, req *domain.DownloadRequest) string {
	var sb strings.Builder

	info, err := g.readings.GetChannelInfo(ctx, req.ItemID)
	if err != nil {
		log.Printf("[Gateway] Шапка без иерархии для канала %s: %v", req.ItemID, err)
		fmt.Fprintf(&sb, "# Channel ID: %s\n", req.ItemID)
	} else {
		fmt.Fprintf(&sb, "# Channel: %s (%s)\n", info.Name, info.Code)
		fmt.Fprintf(&sb, "# Item: %s, Area: %s, Scenario: %s\n", info.ItemName, info.AreaName, info.ScenarioName)
	}
	fmt.Fprintf(&sb, "# Period: %s - %s\n", req.StartDate.Format(timestampLayout), req.EndDate.Format(timestampLayout))

	counts, err := g.readings.GetChannelParameterCounts(ctx, req.ItemID, req.StartDate, req.EndDate)
	if err == nil {
		fmt.Fprintf(&sb, "# Parameters:\n")
		for _, pc := range counts {
			unit := pc.Unit
			if unit == "" {
				unit = "-"
			}
			fmt.Fprintf(&sb, "#   %s (%s): %d records\n", pc.Name, unit, pc.RecordCount)
		}
	}
	sb.WriteString("\n")
	return sb.String()
}

func exportFilename(req *domain.DownloadRequest, kind string) string {
	return fmt.Sprintf("%s_%s_%s_%s.csv",
		req.ItemType, sanitizeFilename(req.ItemID), kind,
		time.Now().UTC().Format("20060102_150405"))
}

func sanitizeFilename(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}

type countingResponseWriter struct {
	http.ResponseWriter
	written int64
}

func (w *countingResponseWriter) Write(p []byte) (int, error) {
	n, err := w.ResponseWriter.Write(p)
	w.written += int64(n)
	return n, err
}

func (w *countingResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[Gateway] Ошибка сериализации ответа: %v", err)
	}
}
