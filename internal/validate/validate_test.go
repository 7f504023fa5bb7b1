package validate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name       string
		info       FileInfo
		wantReason Reason
	}{
		{
			name: "valid small pdf",
			info: FileInfo{Name: "report.pdf", SizeBytes: 2 * 1024 * 1024, MediaType: "application/pdf"},
		},
		{
			name: "exactly at the limit",
			info: FileInfo{Name: "report.pdf", SizeBytes: 10 * 1024 * 1024, MediaType: "application/pdf"},
		},
		{
			name:       "no file selected",
			info:       FileInfo{},
			wantReason: ReasonNoFileSelected,
		},
		{
			name:       "12 MB pdf over 10 MB limit",
			info:       FileInfo{Name: "big.pdf", SizeBytes: 12 * 1024 * 1024, MediaType: "application/pdf"},
			wantReason: ReasonTooLarge,
		},
		{
			name:       "png is not allowed",
			info:       FileInfo{Name: "scan.png", SizeBytes: 1024, MediaType: "image/png"},
			wantReason: ReasonUnsupportedType,
		},
		{
			name:       "empty media type",
			info:       FileInfo{Name: "mystery", SizeBytes: 1024},
			wantReason: ReasonUnsupportedType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tt.info, cfg)
			if tt.wantReason == "" {
				assert.NoError(t, err)
				return
			}
			var vErr *Error
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.wantReason, vErr.Reason)
		})
	}
}

func TestCheckTooLargeMessage(t *testing.T) {
	err := Check(FileInfo{Name: "big.pdf", SizeBytes: 12 * 1024 * 1024, MediaType: "application/pdf"}, DefaultConfig())

	var vErr *Error
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Message, "12.00 MB")
	assert.Contains(t, vErr.Message, "10 MB")
}

func TestCheckUnsupportedTypeListsAllowed(t *testing.T) {
	err := Check(FileInfo{Name: "notes.txt", SizeBytes: 10, MediaType: "text/plain"}, DefaultConfig())

	var vErr *Error
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Message, `"text/plain"`)
	assert.Contains(t, vErr.Message, "application/pdf")
}

func TestCheckCaseInsensitiveMediaType(t *testing.T) {
	err := Check(FileInfo{Name: "report.pdf", SizeBytes: 10, MediaType: "Application/PDF"}, DefaultConfig())
	assert.NoError(t, err)
}

func TestErrorIsDetectable(t *testing.T) {
	err := Check(FileInfo{}, DefaultConfig())
	var vErr *Error
	assert.True(t, errors.As(err, &vErr))
}
