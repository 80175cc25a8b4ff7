package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"mercuriogate/internal/domain"
	"mercuriogate/internal/repository"
	"mercuriogate/internal/service"
)

const (
	defaultParameterLimit = 1000
	defaultChannelLimit   = 500
	defaultTablePageSize  = 100
	maxReadingsLimit      = 10000
)

// ReadingsProvider — всё, что обработчику показаний нужно от хранилища.
type ReadingsProvider interface {
	GetParameterInfo(ctx context.Context, parameterID string) (*domain.ParameterInfo, error)
	GetChannelInfo(ctx context.Context, channelID string) (*domain.ChannelInfo, error)
	GetChannelParameters(ctx context.Context, channelID string) ([]domain.ParameterRef, error)
	CountParameterReadings(ctx context.Context, parameterID string, start, end time.Time) (int64, error)
	GetReadings(ctx context.Context, parameterID string, start, end time.Time, limit int) ([]domain.Reading, error)
	GetDownsampledReadings(ctx context.Context, parameterID string, start, end time.Time, numBuckets int) ([]domain.Reading, error)
	GetReadingStats(ctx context.Context, parameterID string, start, end time.Time) (*domain.ReadingStats, error)
	GetTableReadings(ctx context.Context, parameterID string, start, end time.Time, limit, offset int) ([]domain.Reading, error)
	CountTableReadings(ctx context.Context, parameterID string, start, end time.Time) (int64, error)
	GetFileReadings(ctx context.Context, parameterID string, start, end time.Time, fileType string, limit, offset int) ([]domain.Reading, error)
	CountFileReadings(ctx context.Context, parameterID string, start, end time.Time, fileType string) (int64, error)
}

type ReadingsHandler struct {
	readings ReadingsProvider
}

func NewReadingsHandler(readings ReadingsProvider) *ReadingsHandler {
	return &ReadingsHandler{readings: readings}
}

// GetParameterReadings отдаёт показания параметра для графика. Числовые
// ряды, не влезающие в лимит, прореживаются min/max огибающей; ряды
// путей к файлам отдаются как есть.
func (h *ReadingsHandler) GetParameterReadings(w http.ResponseWriter, r *http.Request) {
	parameterID := chi.URLParam(r, "parameter_id")
	ctx := r.Context()

	start, end, err := parseDateRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
		return
	}
	limit := parseLimit(r, defaultParameterLimit)

	info, err := h.readings.GetParameterInfo(ctx, parameterID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "parameter_not_found", "parameter does not exist")
			return
		}
		log.Printf("[ReadingsHandler] Ошибка чтения параметра %s: %v", parameterID, err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load parameter")
		return
	}

	total, err := h.readings.CountParameterReadings(ctx, parameterID, start, end)
	if err != nil {
		log.Printf("[ReadingsHandler] Ошибка подсчёта показаний %s: %v", parameterID, err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to count readings")
		return
	}

	isNumeric := info.DataType == "numeric" || info.DataType == "float" || info.DataType == "integer"
	downsampled := isNumeric && total > int64(limit)

	var readings []domain.Reading
	if downsampled {
		// Каждая корзина даёт две точки (минимум и максимум)
		buckets := limit / 2
		if buckets < 1 {
			buckets = 1
		}
		readings, err = h.readings.GetDownsampledReadings(ctx, parameterID, start, end, buckets)
	} else {
		readings, err = h.readings.GetReadings(ctx, parameterID, start, end, limit)
	}
	if err != nil {
		log.Printf("[ReadingsHandler] Ошибка выборки показаний %s: %v", parameterID, err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load readings")
		return
	}

	contentInfo := h.contentInfo(info, readings)

	response := map[string]any{
		"readings":       readings,
		"parameter_info": info,
		"content_info":   contentInfo,
		"query_info": map[string]any{
			"start_date": start.Format(time.RFC3339),
			"end_date":   end.Format(time.RFC3339),
			"limit":      limit,
		},
	}

	if contentInfo["classification"] == string(domain.ContentNumericData) {
		stats, err := h.readings.GetReadingStats(ctx, parameterID, start, end)
		if err != nil {
			log.Printf("[ReadingsHandler] Статистика недоступна для %s: %v", parameterID, err)
		} else {
			response["stats"] = map[string]any{
				"count":                   stats.Count,
				"numeric_count":           stats.NumericCount,
				"min":                     stats.Min,
				"max":                     stats.Max,
				"avg":                     stats.Avg,
				"downsampled":             downsampled,
				"chart_samples":           len(readings),
				"total_records_in_period": total,
			}
		}
	}

	writeJSON(w, http.StatusOK, response)
}

// contentInfo описывает форму содержимого по фактическим значениям:
// объявленный тип параметра может расходиться с данными.
func (h *ReadingsHandler) contentInfo(info *domain.ParameterInfo, readings []domain.Reading) map[string]any {
	values := make([]string, 0, len(readings))
	for _, rd := range readings {
		values = append(values, rd.Value)
	}

	classification := service.AnalyzeValues(values)
	if len(values) == 0 {
		// Пустая выборка — опираемся на объявленный тип
		if info.DataType == "numeric" {
			classification = domain.ContentNumericData
		}
	}

	ci := map[string]any{
		"classification": string(classification),
		"data_type":      info.DataType,
	}

	if classification == domain.ContentFilePaths && len(values) > 0 {
		ci["file_type"] = service.FileTypeOf(values[0])
	}
	return ci
}

// GetChannelReadings отдаёт показания всех параметров канала, по
// отдельной выборке на параметр.
func (h *ReadingsHandler) GetChannelReadings(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channel_id")
	ctx := r.Context()

	start, end, err := parseDateRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
		return
	}
	limit := parseLimit(r, defaultChannelLimit)

	info, err := h.readings.GetChannelInfo(ctx, channelID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "channel_not_found", "channel does not exist")
			return
		}
		log.Printf("[ReadingsHandler] Ошибка чтения канала %s: %v", channelID, err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load channel")
		return
	}

	params, err := h.readings.GetChannelParameters(ctx, channelID)
	if err != nil {
		log.Printf("[ReadingsHandler] Ошибка чтения параметров канала %s: %v", channelID, err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load channel parameters")
		return
	}

	parameters := make([]map[string]any, 0, len(params))
	for _, p := range params {
		pid := strconv.FormatInt(p.ParameterID, 10)
		readings, err := h.readings.GetReadings(ctx, pid, start, end, limit)
		if err != nil {
			log.Printf("[ReadingsHandler] Ошибка выборки показаний параметра %s: %v", pid, err)
			continue
		}
		parameters = append(parameters, map[string]any{
			"parameter_id": p.ParameterID,
			"name":         p.Name,
			"data_type":    p.DataType,
			"readings":     readings,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"channel_info": info,
		"parameters":   parameters,
		"query_info": map[string]any{
			"start_date": start.Format(time.RFC3339),
			"end_date":   end.Format(time.RFC3339),
			"limit":      limit,
		},
	})
}

// GetParameterTable отдаёт страницу сырых показаний для табличного вида.
func (h *ReadingsHandler) GetParameterTable(w http.ResponseWriter, r *http.Request) {
	parameterID := chi.URLParam(r, "parameter_id")
	ctx := r.Context()

	start, end, err := parseDateRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
		return
	}

	page, pageSize := parsePagination(r)
	offset := (page - 1) * pageSize

	total, err := h.readings.CountTableReadings(ctx, parameterID, start, end)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "parameter_not_found", "parameter does not exist")
			return
		}
		log.Printf("[ReadingsHandler] Ошибка подсчёта таблицы %s: %v", parameterID, err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to count readings")
		return
	}

	readings, err := h.readings.GetTableReadings(ctx, parameterID, start, end, pageSize, offset)
	if err != nil {
		log.Printf("[ReadingsHandler] Ошибка выборки таблицы %s: %v", parameterID, err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load readings")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"readings": readings,
		"pagination": map[string]any{
			"page":        page,
			"page_size":   pageSize,
			"total":       total,
			"total_pages": (total + int64(pageSize) - 1) / int64(pageSize),
		},
	})
}

// GetParameterFiles отдаёт страницу файловых показаний с фильтром по
// категории (image, pdf, csv, json, video).
func (h *ReadingsHandler) GetParameterFiles(w http.ResponseWriter, r *http.Request) {
	parameterID := chi.URLParam(r, "parameter_id")
	ctx := r.Context()

	start, end, err := parseDateRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
		return
	}

	fileType := r.URL.Query().Get("file_type")
	page, pageSize := parsePagination(r)
	offset := (page - 1) * pageSize

	total, err := h.readings.CountFileReadings(ctx, parameterID, start, end, fileType)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "parameter_not_found", "parameter does not exist")
			return
		}
		log.Printf("[ReadingsHandler] Ошибка подсчёта файлов %s: %v", parameterID, err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to count files")
		return
	}

	readings, err := h.readings.GetFileReadings(ctx, parameterID, start, end, fileType, pageSize, offset)
	if err != nil {
		log.Printf("[ReadingsHandler] Ошибка выборки файлов %s: %v", parameterID, err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load files")
		return
	}

	files := make([]map[string]any, 0, len(readings))
	for _, rd := range readings {
		files = append(files, map[string]any{
			"timestamp_utc": rd.TimestampUTC,
			"file_path":     rd.Value,
			"file_type":     service.FileTypeOf(rd.Value),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"files": files,
		"pagination": map[string]any{
			"page":        page,
			"page_size":   pageSize,
			"total":       total,
			"total_pages": (total + int64(pageSize) - 1) / int64(pageSize),
		},
		"filter": map[string]any{
			"file_type": fileType,
		},
	})
}

func parseLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return def
	}
	if limit > maxReadingsLimit {
		return maxReadingsLimit
	}
	return limit
}

func parsePagination(r *http.Request) (page, pageSize int) {
	page = 1
	pageSize = defaultTablePageSize

	if raw := r.URL.Query().Get("page"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			page = v
		}
	}
	if raw := r.URL.Query().Get("page_size"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 1000 {
			pageSize = v
		}
	}
	return page, pageSize
}
