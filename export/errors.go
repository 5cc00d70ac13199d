package export

import "fmt"

// FontEmbedError reports a face that could not be resolved, encoded or
// embedded. The export is abandoned rather than dropping the text.
type FontEmbedError struct {
	Font    string
	Element string
	Err     error
}

func (e *FontEmbedError) Error() string {
	if e.Element != "" {
		return fmt.Sprintf("embed font %s for element %s: %v", e.Font, e.Element, e.Err)
	}
	return fmt.Sprintf("embed font %s: %v", e.Font, e.Err)
}

func (e *FontEmbedError) Unwrap() error { return e.Err }

// ImageEmbedError reports image bytes that could not be embedded.
type ImageEmbedError struct {
	Element string
	Page    int
	Err     error
}

func (e *ImageEmbedError) Error() string {
	return fmt.Sprintf("embed image %s on page %d: %v", e.Element, e.Page, e.Err)
}

func (e *ImageEmbedError) Unwrap() error { return e.Err }
