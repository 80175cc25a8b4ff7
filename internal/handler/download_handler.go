package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"mercuriogate/internal/auth"
	"mercuriogate/internal/domain"
	"mercuriogate/internal/service"
	"mercuriogate/internal/service/s3"
)

// Окно выгрузки по умолчанию, когда даты не заданы.
const defaultExportWindow = 7 * 24 * time.Hour

type DownloadHandler struct {
	gateway *service.Gateway
	traffic *service.TrafficService
	streams *service.StreamService
	store   s3.Storage
}

func NewDownloadHandler(gateway *service.Gateway, traffic *service.TrafficService, streams *service.StreamService, store s3.Storage) *DownloadHandler {
	return &DownloadHandler{
		gateway: gateway,
		traffic: traffic,
		streams: streams,
		store:   store,
	}
}

// UnifiedDownload — единая точка скачивания: параметры, каналы, файлы
// и архивы проходят через общий конвейер контроля трафика.
func (h *DownloadHandler) UnifiedDownload(w http.ResponseWriter, r *http.Request) {
	itemType := domain.ItemType(chi.URLParam(r, "item_type"))
	if !itemType.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_item_type",
			fmt.Sprintf("unsupported item type %q, expected parameter, channel, file or files", itemType))
		return
	}

	itemID := chi.URLParam(r, "item_id")
	if itemID == "" {
		writeError(w, http.StatusBadRequest, "missing_item_id", "item id is required")
		return
	}

	start, end, err := parseDateRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
		return
	}

	req := &domain.DownloadRequest{
		UserID:    auth.CurrentUser(r),
		ItemType:  itemType,
		ItemID:    itemID,
		StartDate: start,
		EndDate:   end,
	}

	switch itemType {
	case domain.ItemTypeFile:
		req.FilePath = r.URL.Query().Get("file_path")
		if req.FilePath == "" {
			writeError(w, http.StatusBadRequest, "missing_file_path", "file_path query parameter is required")
			return
		}
	case domain.ItemTypeFiles:
		req.FilePaths = parseFilePaths(r.URL.Query()["file_paths"])
		if len(req.FilePaths) == 0 {
			writeError(w, http.StatusBadRequest, "missing_file_paths", "file_paths query parameter is required")
			return
		}
		req.ZipName = r.URL.Query().Get("zip_name")
		if req.ZipName == "" {
			req.ZipName = fmt.Sprintf("files_%s.zip", itemID)
		}
	}

	h.gateway.Download(w, r, req)
}

// TrafficStatus отдаёт пользователю сводку его суточной квоты.
func (h *DownloadHandler) TrafficStatus(w http.ResponseWriter, r *http.Request) {
	userID := auth.CurrentUser(r)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	writeJSON(w, http.StatusOK, h.traffic.Status(r.Context(), userID))
}

// ViewFile отдаёт объект хранилища для просмотра в браузере.
// Просмотр не проходит через контроль трафика.
func (h *DownloadHandler) ViewFile(w http.ResponseWriter, r *http.Request) {
	h.serveObject(w, r, true)
}

// DownloadFileDirect отдаёт объект как вложение, минуя конвейер.
func (h *DownloadHandler) DownloadFileDirect(w http.ResponseWriter, r *http.Request) {
	h.serveObject(w, r, false)
}

func (h *DownloadHandler) serveObject(w http.ResponseWriter, r *http.Request, inline bool) {
	path, err := objectPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_path", err.Error())
		return
	}

	if _, err := h.streams.StreamObject(r.Context(), w, path, inline); err != nil {
		if errors.Is(err, s3.ErrObjectNotFound) {
			writeError(w, http.StatusNotFound, "file_not_found", "requested file does not exist in storage")
			return
		}
		log.Printf("[DownloadHandler] Ошибка отдачи объекта %s: %v", path, err)
		writeError(w, http.StatusInternalServerError, "stream_failed", "failed to stream file")
	}
}

// ListFolder перечисляет объекты хранилища по префиксу.
func (h *DownloadHandler) ListFolder(w http.ResponseWriter, r *http.Request) {
	prefix, err := objectPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_path", err.Error())
		return
	}

	objects, err := h.store.ListFolder(r.Context(), prefix)
	if err != nil {
		log.Printf("[DownloadHandler] Ошибка листинга %s: %v", prefix, err)
		writeError(w, http.StatusInternalServerError, "list_failed", "failed to list folder")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"prefix": prefix,
		"count":  len(objects),
		"files":  objects,
	})
}

// parseFilePaths собирает пути из всех повторов file_paths; внутри
// каждого значения допускается перечисление через запятую.
func parseFilePaths(values []string) []string {
	var paths []string
	for _, raw := range values {
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				paths = append(paths, p)
			}
		}
	}
	return paths
}

func objectPath(r *http.Request) (string, error) {
	raw := chi.URLParam(r, "*")
	if raw == "" {
		return "", fmt.Errorf("object path is required")
	}
	path, err := url.PathUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("malformed object path")
	}
	if strings.Contains(path, "..") {
		return "", fmt.Errorf("object path must not contain parent references")
	}
	return path, nil
}

// parseDateRange разбирает start_date/end_date. Принимаются RFC3339 и
// короткая дата. Отсутствие обеих дат даёт окно за последнюю неделю.
func parseDateRange(r *http.Request) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	start := now.Add(-defaultExportWindow)
	end := now

	if raw := r.URL.Query().Get("start_date"); raw != "" {
		t, err := parseDate(raw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start_date %q", raw)
		}
		start = t
	}
	if raw := r.URL.Query().Get("end_date"); raw != "" {
		t, err := parseDate(raw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end_date %q", raw)
		}
		end = t
	}

	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end_date is before start_date")
	}
	return start, end, nil
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	return time.Parse("2006-01-02", raw)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[Handler] Ошибка сериализации ответа: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error":   code,
		"message": message,
	})
}
