package cmd

import (
	"bytes"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rankscope/rankscope/internal/storage"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect saved run history",
	}
	cmd.AddCommand(newRunsListCmd())
	cmd.AddCommand(newRunsShowCmd())
	cmd.AddCommand(newRunsExportCmd())
	cmd.AddCommand(newRunsDeleteCmd())
	return cmd
}

func openRunStore() (*storage.FSStore, error) {
	store, err := storage.NewFSStore(storage.FSConfig{Dir: rt.cfg.Storage.ResultsDir}, rt.logger)
	if err != nil {
		return nil, fmt.Errorf("open run store: %w", err)
	}
	return store, nil
}

func newRunsListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved runs, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openRunStore()
			if err != nil {
				return err
			}
			runs, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTIMESTAMP\tMODE\tDOMAIN\tFOUND")
			for _, run := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\n",
					run.ID,
					run.Timestamp.Format("2006-01-02 15:04:05"),
					run.Mode,
					run.Domain,
					run.Found,
					run.Total,
				)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of runs to list")
	return cmd
}

func newRunsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the per-keyword records of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openRunStore()
			if err != nil {
				return err
			}
			run, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run %s  %s  mode=%s  domain=%s  %d/%d ranked\n\n",
				run.ID, run.Timestamp.Format("2006-01-02 15:04:05"),
				run.Mode, run.Domain, run.Found, run.Total)
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEYWORD\tRANK\tABS\tURL\tNOTE")
			for _, rec := range run.Records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					rec.Keyword, rankText(rec.OrganicRank), rankText(rec.AbsoluteRank), rec.URL, rec.Note)
			}
			return w.Flush()
		},
	}
}

func rankText(rank *int) string {
	if rank == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *rank)
}

func newRunsExportCmd() *cobra.Command {
	var outFile string
	var bucket string
	cmd := &cobra.Command{
		Use:   "export <run-id>",
		Short: "Export a run as CSV to a file and/or GCS",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openRunStore()
			if err != nil {
				return err
			}
			run, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if outFile == "" && bucket == "" {
				bucket = rt.cfg.Storage.GCSBucket
				if bucket == "" {
					var buf bytes.Buffer
					if err := storage.WriteCSV(&buf, run.Records); err != nil {
						return err
					}
					_, err = buf.WriteTo(cmd.OutOrStdout())
					return err
				}
			}
			if outFile != "" {
				if err := writeCSVFile(outFile, run); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", outFile)
			}
			if bucket != "" {
				uri, err := uploadRun(cmd.Context(), bucket, run)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s\n", uri)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outFile, "out", "o", "", "write CSV to this file (default stdout)")
	cmd.Flags().StringVar(&bucket, "bucket", "", "upload CSV to this GCS bucket (default storage.gcs_bucket)")
	return cmd
}

func newRunsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete one saved run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openRunStore()
			if err != nil {
				return err
			}
			if err := store.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}
