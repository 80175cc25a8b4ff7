package domain

import "time"

// ItemType — тип цели скачивания в унифицированном endpoint.
type ItemType string

const (
	ItemTypeParameter ItemType = "parameter"
	ItemTypeChannel   ItemType = "channel"
	ItemTypeFile      ItemType = "file"
	ItemTypeFiles     ItemType = "files"
)

// Valid сообщает, поддерживается ли тип цели.
func (t ItemType) Valid() bool {
	switch t {
	case ItemTypeParameter, ItemTypeChannel, ItemTypeFile, ItemTypeFiles:
		return true
	}
	return false
}

// ContentClassification — форма содержимого, определяет стратегию стриминга.
type ContentClassification string

const (
	ContentNumericData   ContentClassification = "numeric_data"
	ContentFilePaths     ContentClassification = "file_paths"
	ContentSingleFile    ContentClassification = "single_file"
	ContentMultipleFiles ContentClassification = "multiple_files"
	ContentMixed         ContentClassification = "mixed_content"
	ContentUnknown       ContentClassification = "unknown"
)

// DownloadRequest — одноразовый запрос на скачивание, живёт в рамках
// одного HTTP-запроса. Пустой UserID означает анонимного пользователя.
type DownloadRequest struct {
	UserID    string
	ItemType  ItemType
	ItemID    string
	StartDate time.Time
	EndDate   time.Time
	FilePath  string
	FilePaths []string
	ZipName   string
}
