package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/benjaminschreck/go-clause/pkg/clause"
	"github.com/benjaminschreck/go-clause/pkg/clause/party"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// contextOptions selects where render contexts come from.
type contextOptions struct {
	data    []string
	clients string
}

func addContextFlags(fs *pflag.FlagSet, o *contextOptions) {
	fs.StringArrayVarP(&o.data, "data", "d", nil, "YAML or JSON render context (repeatable, one document per file)")
	fs.StringVarP(&o.clients, "clients", "c", "", "YAML clients file with party assignments")
}

// load returns one render context per --data file, or the single context
// built from --clients. Client records carry every party field, so that
// context is restricted to what tmpl declares.
func (o *contextOptions) load(ctx context.Context, tmpl *clause.Template) ([]clause.RenderContext, error) {
	switch {
	case o.clients != "" && len(o.data) > 0:
		return nil, errors.New("--data and --clients cannot be combined")
	case o.clients != "":
		f, err := party.LoadFile(o.clients)
		if err != nil {
			return nil, err
		}
		rc, err := f.ContextFor(ctx, tmpl)
		if err != nil {
			return nil, err
		}
		return []clause.RenderContext{rc}, nil
	case len(o.data) > 0:
		contexts := make([]clause.RenderContext, 0, len(o.data))
		for _, path := range o.data {
			rc, err := clause.ContextFromFile(path)
			if err != nil {
				return nil, err
			}
			contexts = append(contexts, rc)
		}
		return contexts, nil
	default:
		return nil, errors.New("one of --data or --clients is required")
	}
}

type renderOptions struct {
	contexts contextOptions
	output   string
	strict   bool
}

func newRenderCmd(a *app) *cobra.Command {
	opts := &renderOptions{}

	cmd := &cobra.Command{
		Use:   "render <template>",
		Short: "Render a template with data",
		Long: `Render a text or DOCX template.

With one --data file (or --clients) the result goes to --output, or to
stdout for text templates. With several --data files --output names a
directory and one document is written per file as <name>-<n><ext>.`,
		Example: `  clause render lease.txt --data tenant.yaml
  clause render contract.docx --clients parties.yaml -o signed.docx
  clause render notice.txt -d a.yaml -d b.yaml -o out/`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runRender(cmd.Context(), cmd.OutOrStdout(), args[0], opts)
		},
	}

	addContextFlags(cmd.Flags(), &opts.contexts)
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file, or directory for several --data files")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "reject context keys the template does not use")
	return cmd
}

func (a *app) runRender(ctx context.Context, w io.Writer, path string, opts *renderOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	data, err := readInput(path)
	if err != nil {
		return err
	}

	engine := a.engineFor(opts.strict)
	doc, err := parseDocument(engine, path, data)
	if err != nil {
		return err
	}

	contexts, err := opts.contexts.load(ctx, doc.template)
	if err != nil {
		return err
	}

	if len(contexts) == 1 {
		text, err := engine.Render(doc.template, contexts[0])
		if err != nil {
			return err
		}
		return doc.write(w, opts.output, text)
	}

	if opts.output == "" {
		return errors.New("--output directory is required when rendering several contexts")
	}
	texts, err := engine.RenderBatch(ctx, doc.template, contexts)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(opts.output, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	base, ext := outputName(path, doc.docx != nil)
	for i, text := range texts {
		target := filepath.Join(opts.output, fmt.Sprintf("%s-%d%s", base, i+1, ext))
		if err := doc.write(w, target, text); err != nil {
			return err
		}
		clause.WithField("output", target).Info("Rendered document")
	}
	return nil
}

// document is a parsed template and, for DOCX input, its container.
type document struct {
	template *clause.Template
	docx     *clause.DocxTemplate
}

func parseDocument(engine *clause.Engine, path string, data []byte) (*document, error) {
	if clause.IsDocxPath(path) {
		dt, err := engine.ParseDocx(data)
		if err != nil {
			return nil, err
		}
		return &document{template: dt.Template(), docx: dt}, nil
	}
	tmpl, err := engine.Parse(string(data))
	if err != nil {
		return nil, err
	}
	return &document{template: tmpl}, nil
}

// write stores rendered text at target, or prints it when target is empty.
func (d *document) write(w io.Writer, target, text string) error {
	if d.docx == nil {
		if target == "" {
			_, err := io.WriteString(w, text)
			return err
		}
		return writeOutput(target, []byte(text))
	}

	if target == "" {
		return errors.New("--output is required for DOCX templates")
	}
	out, err := d.docx.Bytes(text)
	if err != nil {
		return err
	}
	return writeOutput(target, out)
}

func writeOutput(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return clause.NewDocumentError("write", path, err)
	}
	return nil
}

// outputName splits the template file name into the base and extension used
// for batch output files.
func outputName(path string, docx bool) (string, string) {
	name := filepath.Base(path)
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	switch {
	case docx:
		ext = ".docx"
	case path == "-":
		base, ext = "document", ".txt"
	case ext == "":
		ext = ".txt"
	}
	return base, ext
}
