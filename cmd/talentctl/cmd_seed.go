package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"talent-source/internal/app"
	"talent-source/internal/seed"
	"talent-source/services"
)

var (
	seedFile     string
	seedURL      string
	seedSelector string
	seedMaxPages int
	seedDelay    time.Duration
)

var errSeedSource = errors.New("exactly one of --file or --url is required")

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load plans or skills into the catalog",
}

var seedPlansCmd = &cobra.Command{
	Use:   "plans",
	Short: "Upsert subscription plans from a YAML file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if seedFile == "" {
			return errors.New("--file is required")
		}
		plans, err := readFile(seedFile, seed.LoadPlans)
		if err != nil {
			return err
		}
		return withApp(cmd.Context(), func(a *app.App) error {
			res, err := a.Seeder.Plans(cmd.Context(), plans)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "plans: %s\n", res)
			return nil
		})
	},
}

var seedSkillsCmd = &cobra.Command{
	Use:   "skills",
	Short: "Upsert skills from a YAML file or a published HTML table",
	Long: `Upsert skills into the catalog.

With --file the YAML list under "skills:" is loaded. With --url the rows
matched by --selector are scraped; each row holds the English name, the
Arabic name and the billing class.`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return validateSkillSource(seedFile, seedURL)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app.App) error {
			var res *seed.Result
			if seedFile != "" {
				list, err := readFile(seedFile, seed.LoadSkills)
				if err != nil {
					return err
				}
				res = a.Seeder.SkillList(cmd.Context(), list)
			} else {
				scraper := services.NewSkillScraper(seedMaxPages, seedDelay)
				res = a.Seeder.SkillsFromURL(cmd.Context(), scraper, seedURL, seedSelector)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "skills: %s\n", res)
			if res.Failed > 0 {
				return fmt.Errorf("%d skills failed", res.Failed)
			}
			return nil
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{seedPlansCmd, seedSkillsCmd} {
		c.Flags().StringVarP(&seedFile, "file", "f", "", "YAML seed file")
	}
	seedSkillsCmd.Flags().StringVar(&seedURL, "url", "", "page publishing the skills table")
	seedSkillsCmd.Flags().StringVar(&seedSelector, "selector", "table tr", "CSS selector of the table rows")
	seedSkillsCmd.Flags().IntVar(&seedMaxPages, "max-pages", 5, "pages followed from --url")
	seedSkillsCmd.Flags().DurationVar(&seedDelay, "delay", time.Second, "delay between page requests")
	seedCmd.AddCommand(seedPlansCmd, seedSkillsCmd)
}

func validateSkillSource(file, url string) error {
	hasFile := strings.TrimSpace(file) != ""
	hasURL := strings.TrimSpace(url) != ""
	if hasFile == hasURL {
		return errSeedSource
	}
	return nil
}

func readFile[T any](path string, load func(io.Reader) (T, error)) (T, error) {
	var zero T
	f, err := os.Open(path)
	if err != nil {
		return zero, err
	}
	defer f.Close()
	v, err := load(f)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}
