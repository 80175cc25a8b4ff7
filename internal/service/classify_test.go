package service

import (
	"context"
	"errors"
	"testing"

	"mercuriogate/internal/domain"
)

type fakeClassifySource struct {
	dataType string
	sample   string
	err      error
	calls    int
}

func (f *fakeClassifySource) ClassifySource(ctx context.Context, parameterID string) (string, string, error) {
	f.calls++
	return f.dataType, f.sample, f.err
}

func TestIsFilePath(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"/data/photos/cam01.jpg", true},
		{"./relative/report.pdf", true},
		{"minio://bucket/object.csv", true},
		{"https://example.com/video.mp4", true},
		{"snapshot.PNG", true},
		{"23.5", false},
		{"", false},
		{"   ", false},
		{"plain text value", false},
	}

	for _, tt := range tests {
		if got := IsFilePath(tt.value); got != tt.want {
			t.Errorf("IsFilePath(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestFileTypeOf(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"cam01.jpg", "image"},
		{"clip.MOV", "video"},
		{"report.pdf", "pdf"},
		{"export.csv", "data"},
		{"firmware.bin", "other"},
	}

	for _, tt := range tests {
		if got := FileTypeOf(tt.path); got != tt.want {
			t.Errorf("FileTypeOf(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestClassifyChannelAlwaysNumeric(t *testing.T) {
	src := &fakeClassifySource{dataType: "file"}
	c := NewContentClassifier(src)

	got, err := c.Classify(context.Background(), domain.ItemTypeChannel, "7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != domain.ContentNumericData {
		t.Errorf("channel classification = %v, want numeric_data", got)
	}
	if src.calls != 0 {
		t.Error("channel classification should not hit the database")
	}
}

func TestClassifyParameterByDataType(t *testing.T) {
	tests := []struct {
		dataType string
		sample   string
		want     domain.ContentClassification
	}{
		{"numeric", "", domain.ContentNumericData},
		{"float", "", domain.ContentNumericData},
		{"file", "", domain.ContentFilePaths},
		{"image", "", domain.ContentFilePaths},
		{"", "/data/img.jpg", domain.ContentFilePaths},
		// Необъявленный тип с нефайловым значением — смешанное содержимое
		{"string", "hello world", domain.ContentMixed},
		{"", "42.1", domain.ContentMixed},
		// Параметр без показаний всё равно должен выгружаться
		{"string", "", domain.ContentMixed},
		{"", "", domain.ContentMixed},
	}

	for _, tt := range tests {
		src := &fakeClassifySource{dataType: tt.dataType, sample: tt.sample}
		c := NewContentClassifier(src)

		got, err := c.Classify(context.Background(), domain.ItemTypeParameter, "1")
		if err != nil {
			t.Fatalf("Classify(%q, %q): unexpected error: %v", tt.dataType, tt.sample, err)
		}
		if got != tt.want {
			t.Errorf("Classify(%q, %q) = %v, want %v", tt.dataType, tt.sample, got, tt.want)
		}
	}
}

func TestClassifyCachesResult(t *testing.T) {
	src := &fakeClassifySource{dataType: "numeric"}
	c := NewContentClassifier(src)

	for i := 0; i < 3; i++ {
		if _, err := c.Classify(context.Background(), domain.ItemTypeParameter, "5"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if src.calls != 1 {
		t.Errorf("source queried %d times, want 1 (cached)", src.calls)
	}
}

func TestClassifyErrorIsNotCached(t *testing.T) {
	src := &fakeClassifySource{err: errors.New("db down")}
	c := NewContentClassifier(src)

	if _, err := c.Classify(context.Background(), domain.ItemTypeParameter, "5"); err == nil {
		t.Fatal("expected error")
	}

	src.err = nil
	src.dataType = "numeric"

	got, err := c.Classify(context.Background(), domain.ItemTypeParameter, "5")
	if err != nil {
		t.Fatalf("unexpected error after recovery: %v", err)
	}
	if got != domain.ContentNumericData {
		t.Errorf("classification after recovery = %v, want numeric_data", got)
	}
}

func TestAnalyzeValues(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		want   domain.ContentClassification
	}{
		{"all numeric", []string{"1.2", "3.4"}, domain.ContentNumericData},
		{"all paths", []string{"/a.jpg", "/b.png"}, domain.ContentFilePaths},
		{"mixed", []string{"1.2", "/b.png"}, domain.ContentMixed},
		{"empty", nil, domain.ContentUnknown},
	}

	for _, tt := range tests {
		if got := AnalyzeValues(tt.values); got != tt.want {
			t.Errorf("%s: AnalyzeValues = %v, want %v", tt.name, got, tt.want)
		}
	}
}
