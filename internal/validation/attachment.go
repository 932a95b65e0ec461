package validation

import (
	"path/filepath"
	"strings"

	situation_errors "situation-room/pkg/errors"

	"github.com/gabriel-vasile/mimetype"
)

// Extensions whose content is plain text and carries no magic number.
var textExtensions = map[string]struct{}{
	".txt": {}, ".csv": {}, ".json": {}, ".log": {}, ".md": {},
}

var extensionAliases = map[string]string{
	".jpeg": ".jpg",
	".tif":  ".tiff",
}

// AttachmentValidator checks uploads before they reach the document store.
// Each check fails fast with a validation fault.
type AttachmentValidator struct {
	maxSize int64
	allowed map[string]struct{}
}

func NewAttachmentValidator(maxSize int64, extensions []string) *AttachmentValidator {
	allowed := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = struct{}{}
	}
	return &AttachmentValidator{maxSize: maxSize, allowed: allowed}
}

func (v *AttachmentValidator) CheckNotNull(name string, content []byte) error {
	if strings.TrimSpace(name) == "" || len(content) == 0 {
		return situation_errors.Validation("invalidattachment", "Attachment {0} is empty", name)
	}
	return nil
}

func (v *AttachmentValidator) CheckExtension(name string) error {
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := v.allowed[ext]; !ok {
		return situation_errors.Validation("unsupportedextension", "File type {0} is not allowed", ext)
	}
	return nil
}

func (v *AttachmentValidator) CheckSize(size int64) error {
	if v.maxSize > 0 && size > v.maxSize {
		return situation_errors.Validation("attachmenttoolarge", "Attachment exceeds {0} bytes", v.maxSize)
	}
	return nil
}

// CheckSignature sniffs the content and requires it to agree with the file
// extension. It returns the detected content type.
func (v *AttachmentValidator) CheckSignature(name string, content []byte) (string, error) {
	ext := normalizeExt(filepath.Ext(name))
	detected := mimetype.Detect(content)

	for mt := detected; mt != nil; mt = mt.Parent() {
		if normalizeExt(mt.Extension()) == ext {
			return detected.String(), nil
		}
	}
	if _, isText := textExtensions[ext]; isText && hasTextAncestor(detected) {
		return detected.String(), nil
	}
	return "", situation_errors.Validation("signaturemismatch", "Content of {0} does not match its extension", name)
}

// Validate runs every check in order and returns the detected content type.
func (v *AttachmentValidator) Validate(name string, content []byte) (string, error) {
	if err := v.CheckNotNull(name, content); err != nil {
		return "", err
	}
	if err := v.CheckExtension(name); err != nil {
		return "", err
	}
	if err := v.CheckSize(int64(len(content))); err != nil {
		return "", err
	}
	return v.CheckSignature(name, content)
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if alias, ok := extensionAliases[ext]; ok {
		return alias
	}
	return ext
}

func hasTextAncestor(mt *mimetype.MIME) bool {
	for ; mt != nil; mt = mt.Parent() {
		if mt.Is("text/plain") {
			return true
		}
	}
	return false
}
