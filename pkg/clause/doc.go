// Package clause is a placeholder template engine for legal and business
// documents.
//
// A template is plain text, usually extracted from an uploaded DOCX file,
// with ${NAME} placeholders and repeated party blocks. Templates are parsed
// and validated once, at upload time, and rendered many times with
// per-request data.
//
// # Quick Start
//
//	tmpl, err := clause.Parse("Dated: ${DATE}\n${PARTY1_START}${NAME}, born ${BIRTH}\n${PARTY1_END}")
//	if err != nil {
//	    log.Fatal(err) // *SyntaxError or *AmbiguousScopeError
//	}
//
//	ctx := clause.NewRenderContext().
//	    Set("DATE", "15 January 2024").
//	    AddInstance("PARTY1", map[string]string{"NAME": "Jane Doe", "BIRTH": "01 January 1990"}).
//	    AddInstance("PARTY1", map[string]string{"NAME": "John Roe", "BIRTH": "02 February 1985"})
//
//	out, err := clause.Render(tmpl, ctx)
//
// # Template Syntax
//
// A placeholder is "${" followed by one or more of [A-Z0-9_] and "}".
// Anything else, such as ${}, ${name} or ${A-B}, is literal text.
//
//	${DATE}                        - top-level field
//	${PARTY1_START}...${PARTY1_END} - block, rendered once per PARTY1 instance
//	${SELLER_START}...${SELLER_END} - party identifiers may be symbolic
//
// Fields inside a block are resolved against the current instance only.
// A name may not be used both at top level and inside a block. Blocks may
// not nest, and a block may not re-open before it closes.
//
// # Rendering
//
// Values are opaque strings; no formatting is applied. A missing value is
// a *MissingFieldError and no partial output is returned. A block with no
// instances renders as nothing. In strict mode (Config.StrictMode) context
// keys the template does not declare are rejected with *UnknownFieldError.
//
// Engine.RenderBatch renders one template against many contexts in
// parallel.
//
// # DOCX
//
// ParseDocx extracts the text of word/document.xml, one line per
// paragraph, and DocxTemplate.Write puts rendered text back into a copy of
// the original package. Paragraph and run formatting of the body is not
// preserved.
//
// # Caching
//
// Engines cache validated templates by the SHA-256 of their source text.
// Cached templates are immutable and shared between goroutines.
//
// # Configuration
//
// Config is read from CLAUSE_* environment variables (CLAUSE_CACHE_MAX_SIZE,
// CLAUSE_CACHE_TTL, CLAUSE_LOG_LEVEL, CLAUSE_RENDER_STRICT,
// CLAUSE_RENDER_CONCURRENCY, CLAUSE_TEMPLATE_MAX_SIZE) and can be replaced
// with SetGlobalConfig or per engine with NewWithConfig.
//
// # Thread Safety
//
// Template is immutable. Engine, TemplateCache and the package logger are
// safe for concurrent use.
package clause
