package clause

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Engine provides the main API for working with templates.
// Use New() to create a new engine instance.
type Engine struct {
	// config is nil for engines that follow the global configuration.
	config *Config
	cache  *TemplateCache
}

// New creates a new template engine that follows the global configuration
// and uses the shared template cache.
func New() *Engine {
	return &Engine{cache: defaultCache}
}

func (e *Engine) settings() *Config {
	if e.config == nil {
		return GetGlobalConfig()
	}
	return e.config
}

// pin gives the engine its own copy of the current settings before an
// option modifies them.
func (e *Engine) pin() *Config {
	if e.config == nil {
		e.config = GetGlobalConfig()
	}
	return e.config
}

// NewWithConfig creates a new template engine with custom configuration
// and a private cache sized from it.
func NewWithConfig(config *Config) *Engine {
	cfg := NewConfigWithDefaults(config)
	return &Engine{
		config: cfg,
		cache: NewTemplateCacheWithConfig(CacheConfig{
			MaxSize: cfg.CacheMaxSize,
			TTL:     cfg.CacheTTL,
		}),
	}
}

// Parse validates raw template text, returning a cached Template when the
// same text was parsed before.
func (e *Engine) Parse(source string) (*Template, error) {
	maxSize := e.settings().MaxTemplateSize
	if e.cache == nil {
		return parseTemplate(source, maxSize)
	}
	return e.cache.Parse(source, maxSize)
}

// ParseReader reads all of r and parses it as template text.
func (e *Engine) ParseReader(r io.Reader) (*Template, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, NewDocumentError("read", "", err)
	}
	return e.Parse(string(data))
}

// ParseDocx extracts the text of a DOCX document and parses it.
func (e *Engine) ParseDocx(data []byte) (*DocxTemplate, error) {
	dr, err := DocxReaderFromBytes(data)
	if err != nil {
		return nil, err
	}
	text, err := dr.Text()
	if err != nil {
		return nil, err
	}
	tmpl, err := e.Parse(text)
	if err != nil {
		return nil, err
	}
	return &DocxTemplate{template: tmpl, docx: dr}, nil
}

// ParseFile loads a template from disk. Files ending in .docx go through
// the DOCX adapter; anything else is read as plain text.
func (e *Engine) ParseFile(path string) (*Template, error) {
	if IsDocxPath(path) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, NewDocumentError("read", path, err)
		}
		dt, err := e.ParseDocx(data)
		if err != nil {
			return nil, err
		}
		return dt.Template(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewDocumentError("read", path, err)
	}
	return e.Parse(string(data))
}

// Render resolves tmpl against rc using the engine's strict-mode setting.
func (e *Engine) Render(tmpl *Template, rc RenderContext) (string, error) {
	return RenderWithOptions(tmpl, rc, RenderOptions{Strict: e.settings().StrictMode})
}

// RenderDocx renders dt against rc and writes the resulting DOCX to w.
// Nothing is written when rendering fails.
func (e *Engine) RenderDocx(dt *DocxTemplate, rc RenderContext, w io.Writer) error {
	text, err := e.Render(dt.template, rc)
	if err != nil {
		return err
	}
	return dt.Write(text, w)
}

// Config returns the engine's configuration. For engines following the
// global configuration it is a snapshot.
func (e *Engine) Config() *Config {
	return e.settings()
}

// CacheStats reports the engine cache counters.
func (e *Engine) CacheStats() CacheStats {
	if e.cache == nil {
		return CacheStats{}
	}
	return e.cache.Stats()
}

// ClearCache removes all templates from the cache.
func (e *Engine) ClearCache() {
	if e.cache != nil {
		e.cache.Clear()
	}
}

// DocxTemplate pairs a validated Template with the DOCX container it was
// extracted from, so rendered text can be written back into it.
type DocxTemplate struct {
	template *Template
	docx     *DocxReader
}

// Template returns the validated template text.
func (dt *DocxTemplate) Template() *Template {
	return dt.template
}

// Write embeds already rendered text into a copy of the source DOCX.
func (dt *DocxTemplate) Write(text string, w io.Writer) error {
	return WriteDocx(dt.docx, text, w)
}

// Bytes is Write into a fresh buffer.
func (dt *DocxTemplate) Bytes(text string) ([]byte, error) {
	var buf bytes.Buffer
	if err := dt.Write(text, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// IsDocxPath reports whether path names a DOCX file.
func IsDocxPath(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".docx")
}

// Option represents a configuration option for the engine.
type Option func(*Engine)

// WithConfig returns an option that sets the engine configuration.
func WithConfig(config *Config) Option {
	return func(e *Engine) {
		e.config = NewConfigWithDefaults(config)
	}
}

// WithCache returns an option that gives the engine a private cache of the
// given size (0 disables caching).
func WithCache(maxSize int) Option {
	return func(e *Engine) {
		cfg := e.pin()
		cfg.CacheMaxSize = maxSize
		e.cache = NewTemplateCacheWithConfig(CacheConfig{
			MaxSize: maxSize,
			TTL:     cfg.CacheTTL,
		})
	}
}

// WithStrictMode returns an option that toggles strict rendering.
func WithStrictMode(strict bool) Option {
	return func(e *Engine) {
		e.pin().StrictMode = strict
	}
}

// WithRenderConcurrency returns an option that bounds RenderBatch.
func WithRenderConcurrency(n int) Option {
	return func(e *Engine) {
		e.pin().RenderConcurrency = n
	}
}

// NewWithOptions creates a new engine with the specified options.
func NewWithOptions(opts ...Option) *Engine {
	engine := New()
	for _, opt := range opts {
		opt(engine)
	}
	return engine
}

// DefaultEngine is the global default engine instance.
var DefaultEngine = New()

// ParseFile loads a template from disk using the default engine.
func ParseFile(path string) (*Template, error) {
	return DefaultEngine.ParseFile(path)
}

// ParseDocx parses a DOCX template using the default engine.
func ParseDocx(data []byte) (*DocxTemplate, error) {
	return DefaultEngine.ParseDocx(data)
}

// ClearCache clears the global template cache.
func ClearCache() {
	DefaultEngine.ClearCache()
}

// MustParse is like Parse but panics on error. Intended for templates
// embedded in programs and tests.
func MustParse(source string) *Template {
	tmpl, err := Parse(source)
	if err != nil {
		panic(fmt.Sprintf("clause: MustParse: %v", err))
	}
	return tmpl
}
