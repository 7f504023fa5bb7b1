// Package validate checks a candidate upload before any network activity.
package validate

import (
	"fmt"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Reason classifies why a candidate file was rejected.
type Reason string

const (
	ReasonNoFileSelected  Reason = "no_file_selected"
	ReasonTooLarge        Reason = "too_large"
	ReasonUnsupportedType Reason = "unsupported_type"
)

// Error reports a rejected candidate file. It is always produced locally,
// before anything touches the network, so the user can simply pick another
// file.
type Error struct {
	Reason  Reason
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

// FileInfo describes a candidate upload: what the picker reported, not what
// the bytes actually contain.
type FileInfo struct {
	Name      string
	SizeBytes int64
	MediaType string
}

// Config constrains what may be uploaded.
type Config struct {
	MaxSizeBytes int64
	AllowedTypes []string
}

// DefaultConfig matches the service's intake limits: PDF only, 10 MB max.
func DefaultConfig() Config {
	return Config{
		MaxSizeBytes: 10 * 1024 * 1024,
		AllowedTypes: []string{"application/pdf"},
	}
}

// Check validates a candidate file against cfg. It is a pure function: no
// side effects, no file reads, no network access. A nil return means the
// file may proceed to upload.
func Check(info FileInfo, cfg Config) error {
	if info.Name == "" && info.SizeBytes == 0 {
		return &Error{
			Reason:  ReasonNoFileSelected,
			Message: "no file selected",
		}
	}

	if info.SizeBytes > cfg.MaxSizeBytes {
		return &Error{
			Reason: ReasonTooLarge,
			Message: fmt.Sprintf("file is %.2f MB, limit is %d MB",
				float64(info.SizeBytes)/(1024*1024), cfg.MaxSizeBytes/(1024*1024)),
		}
	}

	allowed := false
	for _, t := range cfg.AllowedTypes {
		if strings.EqualFold(t, info.MediaType) {
			allowed = true
			break
		}
	}
	if !allowed {
		return &Error{
			Reason: ReasonUnsupportedType,
			Message: fmt.Sprintf("file type %q is not supported (allowed: %s)",
				info.MediaType, strings.Join(cfg.AllowedTypes, ", ")),
		}
	}

	return nil
}

// DeepCheck parses the PDF at path and returns its page count. Unlike Check
// it reads the file, but it is still purely local and runs before upload.
// Relaxed validation mirrors what the analysis service itself tolerates.
func DeepCheck(path string) (int, error) {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed

	if err := api.ValidateFile(path, cfg); err != nil {
		return 0, fmt.Errorf("not a readable PDF: %w", err)
	}
	pageCount, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to get page count: %w", err)
	}
	return pageCount, nil
}
