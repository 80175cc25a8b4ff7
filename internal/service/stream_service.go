package service

import (
	"archive/zip"
	"compress/flate"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"mercuriogate/internal/service/s3"
)

const streamChunkSize = 8 * 1024

// CSVExport описывает одну CSV-выгрузку: имя файла, описательную шапку,
// колонки и источник строк. Rows вызывает fn для каждой записи и
// возвращает ошибку курсора, если чтение оборвалось.
type CSVExport struct {
	Filename string
	Header   string
	Columns  []string
	Rows     func(ctx context.Context, fn func(record []string) error) error
}

// StreamService отдаёт три вида потоков: CSV-экспорт, прямую передачу
// объекта и zip-архив. Экспорт и архив сначала собираются во временный
// файл: размер становится известен до первого байта ответа, а память
// не зависит от объёма данных.
type StreamService struct {
	store s3.Storage
}

func NewStreamService(store s3.Storage) *StreamService {
	return &StreamService{store: store}
}

// StreamCSV собирает экспорт во временный файл и отдаёт его клиенту с
// точным Content-Length. Возвращает число байт, записанных в ответ.
func (s *StreamService) StreamCSV(ctx context.Context, w http.ResponseWriter, exp *CSVExport) (int64, error) {
	tmp, err := os.CreateTemp("", "export-*.csv")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := writeCSVBody(ctx, tmp, exp); err != nil {
		tmp.Close()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("failed to finalize temp file: %w", err)
	}

	info, err := os.Stat(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("failed to stat temp file: %w", err)
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, exp.Filename))

	return s.copyFile(ctx, w, tmpPath)
}

func writeCSVBody(ctx context.Context, out io.Writer, exp *CSVExport) error {
	// BOM, чтобы Excel распознал UTF-8
	if _, err := out.Write([]byte("\uFEFF")); err != nil {
		return fmt.Errorf("failed to write BOM: %w", err)
	}
	if exp.Header != "" {
		if _, err := io.WriteString(out, exp.Header); err != nil {
			return fmt.Errorf("failed to write export header: %w", err)
		}
	}

	cw := csv.NewWriter(out)
	if err := cw.Write(exp.Columns); err != nil {
		return fmt.Errorf("failed to write column row: %w", err)
	}

	if err := exp.Rows(ctx, cw.Write); err != nil {
		return fmt.Errorf("failed to export rows: %w", err)
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}

// StreamObject передаёт объект хранилища как есть, с точным размером.
// s3.ErrObjectNotFound пробрасывается вызывающему для ответа 404.
func (s *StreamService) StreamObject(ctx context.Context, w http.ResponseWriter, path string, inline bool) (int64, error) {
	// Сначала Stat: 404 должен уйти до записи заголовков ответа
	size, err := s.store.Stat(ctx, path)
	if err != nil {
		return 0, err
	}

	obj, err := s.store.GetObject(ctx, path)
	if err != nil {
		return 0, err
	}
	defer obj.Close()

	contentType := obj.ContentType()
	if contentType == "" || contentType == "application/octet-stream" {
		if byExt := mime.TypeByExtension(filepath.Ext(path)); byExt != "" {
			contentType = byExt
		} else {
			contentType = "application/octet-stream"
		}
	}

	disposition := "attachment"
	if inline {
		disposition = "inline"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf(`%s; filename="%s"`, disposition, filepath.Base(path)))

	return copyChunked(ctx, w, obj)
}

// StreamZip собирает архив из объектов хранилища во временном файле и
// отдаёт его клиенту. Отсутствующие объекты пропускаются, архив из
// оставшихся всё равно отдаётся.
func (s *StreamService) StreamZip(ctx context.Context, w http.ResponseWriter, paths []string, zipName string) (int64, error) {
	tmp, err := os.CreateTemp("", "archive-*.zip")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	added, err := s.writeZipBody(ctx, tmp, paths)
	if err != nil {
		tmp.Close()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("failed to finalize temp file: %w", err)
	}

	log.Printf("[StreamService] Архив %s: %d из %d объектов", zipName, added, len(paths))

	info, err := os.Stat(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("failed to stat temp file: %w", err)
	}

	if !strings.HasSuffix(strings.ToLower(zipName), ".zip") {
		zipName += ".zip"
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, zipName))

	return s.copyFile(ctx, w, tmpPath)
}

func (s *StreamService) writeZipBody(ctx context.Context, out io.Writer, paths []string) (int, error) {
	zw := zip.NewWriter(out)
	// Скорость важнее степени сжатия: содержимое в основном уже сжато
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.BestSpeed)
	})

	added := 0
	for _, path := range paths {
		if _, err := s.store.Stat(ctx, path); err != nil {
			log.Printf("[StreamService] Объект %s пропущен: %v", path, err)
			continue
		}

		obj, err := s.store.GetObject(ctx, path)
		if err != nil {
			log.Printf("[StreamService] Объект %s пропущен: %v", path, err)
			continue
		}

		entry, err := zw.Create(filepath.Base(path))
		if err != nil {
			obj.Close()
			return added, fmt.Errorf("failed to create zip entry: %w", err)
		}
		if _, err := io.Copy(entry, obj); err != nil {
			obj.Close()
			return added, fmt.Errorf("failed to write zip entry %s: %w", path, err)
		}
		obj.Close()
		added++
	}

	if err := zw.Close(); err != nil {
		return added, fmt.Errorf("failed to close zip writer: %w", err)
	}
	return added, nil
}

func (s *StreamService) copyFile(ctx context.Context, w http.ResponseWriter, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to reopen temp file: %w", err)
	}
	defer f.Close()

	return copyChunked(ctx, w, f)
}

// copyChunked копирует поток небольшими кусками, сбрасывая буфер после
// каждого и прерываясь при отмене контекста.
func copyChunked(ctx context.Context, w http.ResponseWriter, r io.Reader) (int64, error) {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, streamChunkSize)

	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		n, err := r.Read(buf)
		if n > 0 {
			wn, werr := w.Write(buf[:n])
			written += int64(wn)
			if werr != nil {
				return written, fmt.Errorf("failed to write response: %w", werr)
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err == io.EOF {
			return written, nil
		}
		if err != nil {
			return written, fmt.Errorf("failed to read stream: %w", err)
		}
	}
}
