package fonts

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/goregular"
)

// SignatureKey is the cache key of the decorative signature face.
const SignatureKey = "signature"

// DingbatsKey is the cache key of the ZapfDingbats face used for marks.
const DingbatsKey = "zapfdingbats"

// UnknownFamilyError reports a family that is neither configured nor mapped
// to a standard face.
type UnknownFamilyError struct{ Family string }

func (e *UnknownFamilyError) Error() string { return fmt.Sprintf("unknown font family %q", e.Family) }

type familyFiles struct{ regular, bold []byte }

// Registry resolves family names to faces. Faces are parsed once and shared;
// a Registry is safe for concurrent use.
type Registry struct {
	mu        sync.Mutex
	families  map[string]familyFiles
	signature []byte
	faces     map[string]*Face
}

// NewRegistry returns a registry with the standard families and the Go Italic
// face as the signature font.
func NewRegistry() *Registry {
	return &Registry{
		families:  map[string]familyFiles{},
		signature: goitalic.TTF,
		faces:     map[string]*Face{},
	}
}

// Register adds a TrueType family. bold may be nil, in which case the regular
// face is used for bold text too.
func (r *Registry) Register(family string, regular, bold []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := normalizeFamily(family)
	r.families[key] = familyFiles{regular: regular, bold: bold}
	delete(r.faces, key+"/regular")
	delete(r.faces, key+"/bold")
}

// RegisterFiles reads a family's font files from disk.
func (r *Registry) RegisterFiles(family, regularPath, boldPath string) error {
	regular, err := os.ReadFile(regularPath)
	if err != nil {
		return fmt.Errorf("font family %s: %w", family, err)
	}
	var bold []byte
	if boldPath != "" {
		if bold, err = os.ReadFile(boldPath); err != nil {
			return fmt.Errorf("font family %s: %w", family, err)
		}
	}
	r.Register(family, regular, bold)
	return nil
}

// SetSignature replaces the decorative signature face.
func (r *Registry) SetSignature(data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signature = data
	delete(r.faces, SignatureKey)
}

// Resolve returns the face for a family and weight.
func (r *Registry) Resolve(family string, bold bool) (*Face, error) {
	name := normalizeFamily(family)
	weight := "regular"
	if bold {
		weight = "bold"
	}
	key := name + "/" + weight

	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.faces[key]; ok {
		return f, nil
	}
	if files, ok := r.families[name]; ok {
		data := files.regular
		if bold && files.bold != nil {
			data = files.bold
		}
		f, err := LoadTrueType(key, data)
		if err != nil {
			return nil, fmt.Errorf("font family %s: %w", family, err)
		}
		r.faces[key] = f
		return f, nil
	}
	std, ok := standardFamilies[name]
	if !ok {
		return nil, &UnknownFamilyError{Family: family}
	}
	baseName := std.regular
	if bold {
		baseName = std.bold
	}
	proxy, err := r.proxyLocked(std, bold)
	if err != nil {
		return nil, err
	}
	f := &Face{Key: baseName, Name: baseName, Kind: Standard, enc: winAnsi{}, proxy: proxy}
	r.faces[key] = f
	return f, nil
}

// proxyLocked picks the built-in Go face that stands in for a standard face
// when measuring and previewing.
func (r *Registry) proxyLocked(std standardFamily, bold bool) (*Face, error) {
	var key string
	var data []byte
	switch {
	case std == courier && bold:
		key, data = "proxy/gomonobold", gomonobold.TTF
	case std == courier:
		key, data = "proxy/gomono", gomono.TTF
	case bold:
		key, data = "proxy/gobold", gobold.TTF
	default:
		key, data = "proxy/goregular", goregular.TTF
	}
	if f, ok := r.faces[key]; ok {
		return f, nil
	}
	f, err := LoadTrueType(key, data)
	if err != nil {
		return nil, err
	}
	r.faces[key] = f
	return f, nil
}

// Signature returns the decorative face signatures are drawn with.
func (r *Registry) Signature() (*Face, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.faces[SignatureKey]; ok {
		return f, nil
	}
	f, err := LoadTrueType(SignatureKey, r.signature)
	if err != nil {
		return nil, fmt.Errorf("signature font: %w", err)
	}
	r.faces[SignatureKey] = f
	return f, nil
}

// Dingbats returns the ZapfDingbats standard face used for tick and cross
// marks. Its proxy is Go Regular, which previews fall back from.
func (r *Registry) Dingbats() (*Face, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.faces[DingbatsKey]; ok {
		return f, nil
	}
	proxy, err := r.proxyLocked(helvetica, false)
	if err != nil {
		return nil, err
	}
	f := &Face{Key: DingbatsKey, Name: "ZapfDingbats", Kind: Standard, enc: dingbats{}, proxy: proxy}
	r.faces[DingbatsKey] = f
	return f, nil
}
