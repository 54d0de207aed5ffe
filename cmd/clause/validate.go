package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/benjaminschreck/go-clause/pkg/clause"
	"github.com/spf13/cobra"
)

// fileReport is a validation report tagged with the file it came from.
type fileReport struct {
	Path string `json:"path"`
	clause.ValidationReport
}

func newValidateCmd(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "validate <file>...",
		Short: "Check templates for syntax and scope errors",
		Long: `Validate each template and report its fields and blocks.
The command fails if any template is invalid.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			return a.runValidate(cmd.OutOrStdout(), args, format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format (text, json)")
	return cmd
}

func (a *app) runValidate(w io.Writer, paths []string, format string) error {
	reports := make([]fileReport, 0, len(paths))
	invalid := 0

	for _, path := range paths {
		report := a.reportFile(path)
		if !report.Valid {
			invalid++
		}
		reports = append(reports, report)
	}

	if format == "json" {
		if err := writeJSON(w, reports); err != nil {
			return err
		}
	} else {
		for _, r := range reports {
			printReport(w, r)
		}
	}

	if invalid > 0 {
		return fmt.Errorf("%d of %d templates invalid", invalid, len(paths))
	}
	return nil
}

func (a *app) reportFile(path string) fileReport {
	tmpl, err := a.engine.ParseFile(path)
	if err != nil {
		clause.WithField("path", path).Debug("Validation failed: %v", err)
		return fileReport{
			Path: path,
			ValidationReport: clause.ValidationReport{
				Error:  err.Error(),
				Fields: []string{},
				Blocks: []clause.BlockSummary{},
			},
		}
	}
	return fileReport{Path: path, ValidationReport: clause.ReportFor(tmpl)}
}

func printReport(w io.Writer, r fileReport) {
	if !r.Valid {
		fmt.Fprintf(w, "FAIL %s: %s\n", r.Path, r.Error)
		return
	}
	fmt.Fprintf(w, "OK   %s (%d placeholders, %d fields, %d blocks)\n",
		r.Path, r.Placeholders, len(r.Fields), len(r.Blocks))
}

func newFieldsCmd(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "fields <file>",
		Short: "List the fields a template expects",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			return a.runFields(cmd.OutOrStdout(), args[0], format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format (text, json)")
	return cmd
}

// partyFields is the union of fields over every block of one party.
type partyFields struct {
	Party  string   `json:"party"`
	Fields []string `json:"fields"`
}

type fieldsOutput struct {
	Fields  []string      `json:"fields"`
	Parties []partyFields `json:"parties"`
}

func (a *app) runFields(w io.Writer, path string, format string) error {
	tmpl, err := a.engine.ParseFile(path)
	if err != nil {
		return err
	}

	out := fieldsOutput{Fields: tmpl.Fields(), Parties: []partyFields{}}
	if out.Fields == nil {
		out.Fields = []string{}
	}
	for _, p := range tmpl.Parties() {
		out.Parties = append(out.Parties, partyFields{Party: p, Fields: tmpl.PartyFields(p)})
	}

	if format == "json" {
		return writeJSON(w, out)
	}

	for _, f := range out.Fields {
		fmt.Fprintln(w, f)
	}
	for _, p := range out.Parties {
		fmt.Fprintf(w, "%s: %s\n", p.Party, strings.Join(p.Fields, ", "))
	}
	return nil
}

// readInput reads path, or stdin for "-".
func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, clause.NewDocumentError("read", path, err)
	}
	return data, nil
}
