package validation

import (
	"testing"

	situation_errors "situation-room/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func newTestValidator() *AttachmentValidator {
	return NewAttachmentValidator(64, []string{"csv", ".png", "PDF"})
}

func TestAttachmentValidator_AcceptsMatchingContent(t *testing.T) {
	v := newTestValidator()

	ct, err := v.Validate("report.csv", []byte("a,b\n1,2\n"))
	require.NoError(t, err)
	assert.NotEmpty(t, ct)

	ct, err = v.Validate("chart.PNG", pngHeader)
	require.NoError(t, err)
	assert.Equal(t, "image/png", ct)
}

func TestAttachmentValidator_Rejections(t *testing.T) {
	v := newTestValidator()

	tests := []struct {
		name    string
		file    string
		content []byte
		code    string
	}{
		{"empty content", "report.csv", nil, "invalidattachment"},
		{"extension not allowed", "run.exe", []byte("MZ"), "unsupportedextension"},
		{"too large", "big.csv", make([]byte, 65), "attachmenttoolarge"},
		{"png bytes named pdf", "fake.pdf", pngHeader, "signaturemismatch"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Validate(tt.file, tt.content)
			require.Error(t, err)
			assert.ErrorIs(t, err, situation_errors.ErrInvalidInput)
			f, ok := situation_errors.AsFault(err)
			require.True(t, ok)
			assert.Equal(t, tt.code, f.Code)
		})
	}
}

func TestValidator_ReportsJSONFieldNames(t *testing.T) {
	type req struct {
		Name  string   `json:"name" validate:"notblank"`
		Users []string `json:"users" validate:"min=1"`
	}

	err := New().Validate(req{Name: "  "})
	require.Error(t, err)
	f, ok := situation_errors.AsFault(err)
	require.True(t, ok)
	assert.Equal(t, "invalidrequest", f.Code)
	assert.Equal(t, "Missing or invalid fields: name, users", f.Message())

	assert.NoError(t, New().Validate(req{Name: "x", Users: []string{"bob"}}))
}
