// internal/models/document.go
package models

// Source tags where a document came from. It is informational only.
type Source string

const (
	SourceCamera Source = "camera"
	SourceUpload Source = "upload"
	SourcePaste  Source = "paste"
	SourceVoice  Source = "voice"
	SourceDemo   Source = "demo"
)

// DocumentInput is exactly one of Text or Image.
type DocumentInput struct {
	Text        string `json:"text,omitempty"`
	Image       []byte `json:"-"`
	Filename    string `json:"filename,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Source      Source `json:"source,omitempty"`
}

// TextDocument wraps pasted or dictated text.
func TextDocument(text string, source Source) DocumentInput {
	return DocumentInput{Text: text, Source: source}
}

// ImageDocument wraps a captured or uploaded image.
func ImageDocument(image []byte, filename, contentType string, source Source) DocumentInput {
	return DocumentInput{Image: image, Filename: filename, ContentType: contentType, Source: source}
}

// IsImage reports whether the input needs OCR.
func (d DocumentInput) IsImage() bool {
	return d.Image != nil
}

// OcrResult is the recognized text of one image. Confidence is 0-100, or nil
// when the engine scored no words.
type OcrResult struct {
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence"`
}
