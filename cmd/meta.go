package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rankscope/rankscope/internal/dataforseo"
)

func newMetaClient() (*dataforseo.Client, error) {
	cfg := rt.cfg
	client, err := dataforseo.New(dataforseo.Config{
		BaseURL:    cfg.API.BaseURL,
		Login:      cfg.API.Login,
		Password:   cfg.API.Password,
		SerpType:   cfg.API.SerpType,
		Timeout:    cfg.RequestTimeout(),
		MaxRetries: cfg.API.MaxRetries,
		BackoffMin: time.Duration(cfg.API.BackoffInitialMs) * time.Millisecond,
		BackoffMax: time.Duration(cfg.API.BackoffMaxMs) * time.Millisecond,
	}, rt.logger)
	if err != nil {
		return nil, fmt.Errorf("init api client: %w", err)
	}
	return client, nil
}

func newLanguagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "languages",
		Short: "List the languages the configured SERP type supports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := newMetaClient()
			if err != nil {
				return err
			}
			languages, err := client.Languages(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CODE\tNAME")
			for _, lang := range languages {
				fmt.Fprintf(w, "%s\t%s\n", lang.Code, lang.Name)
			}
			return w.Flush()
		},
	}
}

func newLocationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "locations [country-iso]",
		Short: "List supported locations, optionally narrowed to a country",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newMetaClient()
			if err != nil {
				return err
			}
			country := ""
			if len(args) == 1 {
				country = args[0]
			}
			locations, err := client.Locations(cmd.Context(), country)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CODE\tNAME\tCOUNTRY\tTYPE")
			for _, loc := range locations {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", loc.Code, loc.Name, loc.CountryCode, loc.Type)
			}
			return w.Flush()
		},
	}
}
