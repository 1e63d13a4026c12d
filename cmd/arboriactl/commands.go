package main

import (
	"arboria/internal/app"
	"arboria/pkg/domain"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newFarmsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "farms",
		Short: "List farms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(a *app.App) error {
				farms, err := a.Service.ListFarms(cmd.Context())
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tGRID\tCREATED")
				for _, f := range farms {
					fmt.Fprintf(tw, "%s\t%s\t%dx%d\t%s\n", f.ID, f.Name, f.GridRows, f.GridCols, f.CreatedAt.Format("2006-01-02"))
				}
				return tw.Flush()
			})
		},
	}
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats FARM_ID",
		Short: "Print farm statistics as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app.App) error {
				stats, err := a.Service.ComputeStatistics(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), stats)
			})
		},
	}
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var farmID, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export one farm or every farm as a JSON document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(a *app.App) error {
				doc, err := a.Service.ExportState(cmd.Context(), farmID)
				if err != nil {
					return err
				}
				if out == "" || out == "-" {
					return printJSON(cmd.OutOrStdout(), doc)
				}
				f, err := os.Create(out) // #nosec G304 -- operator supplied output path
				if err != nil {
					return err
				}
				if err := printJSON(f, doc); err != nil {
					_ = f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "exported %d farms, %d trees, %d interventions to %s\n",
					len(doc.Farms), len(doc.Trees), len(doc.Interventions), out)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&farmID, "farm", "", "farm id (default: all farms)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default: stdout)")
	return cmd
}

func readDocument(path string) (domain.Document, error) {
	var doc domain.Document
	data, err := os.ReadFile(path) // #nosec G304 -- operator supplied input path
	if err != nil {
		return doc, err
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, domain.DocumentError{Problems: []string{err.Error()}}
	}
	return doc, nil
}

func newImportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Add every record of an exported document as new records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(a *app.App) error {
				result, err := a.Service.ImportState(cmd.Context(), doc)
				if err != nil {
					for _, p := range domain.Problems(err) {
						fmt.Fprintln(cmd.ErrOrStderr(), "  -", p)
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d farms, %d trees, %d interventions\n", result.Farms, result.Trees, result.Interventions)
				return nil
			})
		},
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Check an export document without touching the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(args[0])
			if err != nil {
				return err
			}
			report := doc.Validate()
			if err := printJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			return report.Err()
		},
	}
}

func newArchiveCmd(opts *rootOptions) *cobra.Command {
	var farmID string
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Store a JSON, CSV, XLSX and GeoJSON export in the blob store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(a *app.App) error {
				rec, err := a.Archives.Archive(cmd.Context(), farmID)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rec)
			})
		},
	}
	cmd.Flags().StringVar(&farmID, "farm", "", "farm id (default: all farms)")
	return cmd
}

func newArchivesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "archives",
		Short: "List stored archives",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(a *app.App) error {
				records, err := a.Archives.List(cmd.Context())
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tFARM\tFARMS\tTREES\tINTERVENTIONS")
				for _, r := range records {
					farm := r.FarmID
					if farm == "" {
						farm = "(all)"
					}
					fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\n", r.ID, farm, r.Farms, r.Trees, r.Interventions)
				}
				return tw.Flush()
			})
		},
	}
}

func newRestoreCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore ARCHIVE_ID",
		Short: "Import the document of a stored archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app.App) error {
				result, err := a.Archives.Restore(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "restored %d farms, %d trees, %d interventions\n", result.Farms, result.Trees, result.Interventions)
				return nil
			})
		},
	}
}
