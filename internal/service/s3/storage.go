package s3

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrObjectNotFound возвращается, когда объекта нет в бакете.
var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo — метаданные объекта при листинге.
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// Object — открытый объект хранилища: тело плюс метаданные.
type Object interface {
	io.ReadCloser
	ContentLength() int64
	ContentType() string
}

// Storage абстрагирует объектное хранилище. Реализация — S3-совместимый
// бэкенд, в тестах подменяется фейком.
type Storage interface {
	// Stat возвращает размер объекта. ErrObjectNotFound — объекта нет.
	Stat(ctx context.Context, key string) (int64, error)
	// GetObject открывает объект на чтение. Закрытие — на вызывающем.
	GetObject(ctx context.Context, key string) (Object, error)
	// ListFolder перечисляет объекты с заданным префиксом.
	ListFolder(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

type s3Object struct {
	body          io.ReadCloser
	contentLength int64
	contentType   string
}

func (o *s3Object) Read(p []byte) (int, error) { return o.body.Read(p) }
func (o *s3Object) Close() error               { return o.body.Close() }
func (o *s3Object) ContentLength() int64       { return o.contentLength }
func (o *s3Object) ContentType() string        { return o.contentType }
