package repository

import "errors"

// ErrNotFound — запрошенная сущность отсутствует в БД.
var ErrNotFound = errors.New("not found")
