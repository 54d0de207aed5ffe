package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/benjaminschreck/go-clause/internal/store"
	"github.com/spf13/cobra"
)

func newStoreCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Manage the template library",
		Long: `Manage templates kept in the store directory (--store, store.root).
Each owner has its own namespace of template names.`,
	}
	cmd.AddCommand(
		newStoreAddCmd(a),
		newStoreListCmd(a),
		newStoreShowCmd(a),
		newStoreRenameCmd(a),
		newStoreDeleteCmd(a),
		newStoreGenerateCmd(a),
	)
	return cmd
}

// withStore opens the configured store for the duration of fn.
func (a *app) withStore(fn func(*store.Store) error) error {
	s, err := store.Open(a.cfg.StoreRoot, a.engine)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func (a *app) owner(flag string) string {
	if flag != "" {
		return flag
	}
	return a.cfg.StoreOwner
}

func newStoreAddCmd(a *app) *cobra.Command {
	var name, owner string

	cmd := &cobra.Command{
		Use:   "add <file>",
		Short: "Validate a template and add it to the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(s *store.Store) error {
				return runStoreAdd(cmd.Context(), cmd.OutOrStdout(), s, args[0], name, a.owner(owner))
			})
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "template name (default is the file name without extension)")
	cmd.Flags().StringVar(&owner, "owner", "", "owner namespace (default is store.owner)")
	return cmd
}

func runStoreAdd(ctx context.Context, w io.Writer, s *store.Store, path, name, owner string) error {
	data, err := readInput(path)
	if err != nil {
		return err
	}
	if name == "" {
		base := filepath.Base(path)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	rec, err := s.Add(ctx, owner, name, path, data)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Added %s (%s/%s)\n", rec.ID, rec.Owner, rec.Name)
	return nil
}

func newStoreListCmd(a *app) *cobra.Command {
	var owner, format string
	var all bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List stored templates",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			o := a.owner(owner)
			if all {
				o = ""
			}
			return a.withStore(func(s *store.Store) error {
				return runStoreList(cmd.Context(), cmd.OutOrStdout(), s, o, format)
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner namespace (default is store.owner)")
	cmd.Flags().BoolVarP(&all, "all", "a", false, "list templates of every owner")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format (text, json)")
	return cmd
}

func runStoreList(ctx context.Context, w io.Writer, s *store.Store, owner, format string) error {
	records, err := s.List(ctx, owner)
	if err != nil {
		return err
	}
	if format == "json" {
		return writeJSON(w, records)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tOWNER\tNAME\tKIND\tUPDATED")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Owner, r.Name, r.Kind, r.UpdatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func newStoreShowCmd(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a stored template and its fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			return a.withStore(func(s *store.Store) error {
				return runStoreShow(cmd.Context(), cmd.OutOrStdout(), s, args[0], format)
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format (text, json)")
	return cmd
}

type showOutput struct {
	*store.Record
	Fields  []string      `json:"fields"`
	Parties []partyFields `json:"parties"`
}

func runStoreShow(ctx context.Context, w io.Writer, s *store.Store, id, format string) error {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	tmpl, err := s.Load(ctx, id)
	if err != nil {
		return err
	}

	out := showOutput{Record: rec, Fields: tmpl.Fields(), Parties: []partyFields{}}
	if out.Fields == nil {
		out.Fields = []string{}
	}
	for _, p := range tmpl.Parties() {
		out.Parties = append(out.Parties, partyFields{Party: p, Fields: tmpl.PartyFields(p)})
	}
	if format == "json" {
		return writeJSON(w, out)
	}

	fmt.Fprintf(w, "ID:      %s\n", rec.ID)
	fmt.Fprintf(w, "Owner:   %s\n", rec.Owner)
	fmt.Fprintf(w, "Name:    %s\n", rec.Name)
	fmt.Fprintf(w, "Kind:    %s\n", rec.Kind)
	fmt.Fprintf(w, "Hash:    %s\n", rec.Hash)
	fmt.Fprintf(w, "Updated: %s\n", rec.UpdatedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Fields:  %s\n", strings.Join(out.Fields, ", "))
	for _, p := range out.Parties {
		fmt.Fprintf(w, "Party %s: %s\n", p.Party, strings.Join(p.Fields, ", "))
	}
	return nil
}

func newStoreRenameCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <name>",
		Short: "Rename a stored template",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(s *store.Store) error {
				rec, err := s.Rename(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s to %s\n", rec.ID, rec.Name)
				return nil
			})
		},
	}
}

func newStoreDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a stored template",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(s *store.Store) error {
				if err := s.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func newStoreGenerateCmd(a *app) *cobra.Command {
	var contexts contextOptions
	var output string

	cmd := &cobra.Command{
		Use:   "generate <id>",
		Short: "Render a stored template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(s *store.Store) error {
				return runStoreGenerate(cmd.Context(), cmd.OutOrStdout(), s, args[0], &contexts, output)
			})
		},
	}
	addContextFlags(cmd.Flags(), &contexts)
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default is stdout for text templates)")
	return cmd
}

func runStoreGenerate(ctx context.Context, w io.Writer, s *store.Store, id string, opts *contextOptions, output string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	tmpl, err := s.Load(ctx, id)
	if err != nil {
		return err
	}
	contexts, err := opts.load(ctx, tmpl)
	if err != nil {
		return err
	}
	if len(contexts) != 1 {
		return fmt.Errorf("generate takes exactly one context, got %d", len(contexts))
	}

	data, rec, err := s.Generate(ctx, id, contexts[0])
	if err != nil {
		return err
	}

	if output == "" {
		if rec.Kind == store.KindDocx {
			return fmt.Errorf("--output is required for DOCX template %s", rec.Name)
		}
		_, err := w.Write(data)
		return err
	}
	return writeOutput(output, data)
}
