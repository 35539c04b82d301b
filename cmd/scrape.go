package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/philgeps-cli/internal/browser"
	"github.com/sells-group/philgeps-cli/internal/config"
	"github.com/sells-group/philgeps-cli/internal/model"
	"github.com/sells-group/philgeps-cli/internal/resilience"
	"github.com/sells-group/philgeps-cli/internal/scraper"
	"github.com/sells-group/philgeps-cli/internal/stealth"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape <bids|awards>",
	Short: "Run one scrape session",
	Long:  "Crawls the listing pages, skips records already stored, scrapes the rest across worker tabs and logs the session.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, ok := model.ParseKind(args[0])
		if !ok {
			return eris.Errorf("unknown record kind %q (want bids or awards)", args[0])
		}
		if err := applyScrapeFlags(cmd, cfg); err != nil {
			return err
		}
		if err := cfg.Validate("scrape"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		crawlAll, _ := cmd.Flags().GetBool("all")
		o, err := newOrchestrator(kind, st, scraper.NewStatus(), crawlAll)
		if err != nil {
			return err
		}

		sum := o.Run(ctx)
		formatSummary(os.Stdout, sum)
		if !sum.Success {
			return eris.Errorf("scrape %s failed: %s", kind, sum.Error)
		}
		return nil
	},
}

// applyScrapeFlags overlays explicitly set flags onto the loaded config.
func applyScrapeFlags(cmd *cobra.Command, c *config.Config) error {
	flags := cmd.Flags()
	var err error
	if flags.Changed("workers") {
		if c.Scraper.Workers, err = flags.GetInt("workers"); err != nil {
			return err
		}
	}
	if flags.Changed("start-page") {
		if c.Scraper.StartPage, err = flags.GetInt("start-page"); err != nil {
			return err
		}
	}
	if flags.Changed("max-pages") {
		if c.Scraper.MaxPages, err = flags.GetInt("max-pages"); err != nil {
			return err
		}
	}
	if flags.Changed("visible") {
		c.Browser.Headless = false
	}
	if flags.Changed("no-documents") {
		c.Scraper.FetchDocuments = false
	}

	strFlags := map[string]*string{
		"from":           &c.Scraper.Filters.PublishDateFrom,
		"to":             &c.Scraper.Filters.PublishDateTo,
		"classification": &c.Scraper.Filters.Classification,
		"category":       &c.Scraper.Filters.BusinessCategory,
	}
	for name, dst := range strFlags {
		if !flags.Changed(name) {
			continue
		}
		if *dst, err = flags.GetString(name); err != nil {
			return err
		}
	}
	return nil
}

// newOrchestrator wires a session for kind from the loaded config.
func newOrchestrator(kind model.RecordKind, st scraper.Store, status *scraper.Status, crawlAll bool) (*scraper.Orchestrator, error) {
	v, err := scraper.VariantFor(kind)
	if err != nil {
		return nil, err
	}

	retry, cbCfg := resilience.FromConfig(cfg.Resilience, cfg.Scraper.MaxRetries)
	launchOpts := browser.OptionsFromConfig(cfg.Browser, stealth.NewIdentity())
	launch := func(ctx context.Context) (browser.Browser, error) {
		return browser.Launch(ctx, launchOpts)
	}

	return scraper.New(v, st, launch, scraper.Options{
		Scraper:  cfg.Scraper,
		CrawlAll: crawlAll,
		Location: cfg.Schedule.Location(),
		Retry:    retry,
		Breaker:  resilience.NewCircuitBreaker(cbCfg),
		Status:   status,
	}), nil
}

func formatSummary(w io.Writer, s model.RunSummary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Kind:\t%s\n", s.Kind)
	fmt.Fprintf(tw, "Success:\t%t\n", s.Success)
	fmt.Fprintf(tw, "Scraped:\t%d\n", s.TotalScraped)
	fmt.Fprintf(tw, "New:\t%d\n", s.NewRecords)
	fmt.Fprintf(tw, "Skipped:\t%d\n", s.Skipped)
	fmt.Fprintf(tw, "Errors:\t%d\n", s.Errors)
	fmt.Fprintf(tw, "Workers:\t%d\n", s.Workers)
	fmt.Fprintf(tw, "Duration:\t%.1fs\n", s.DurationSeconds)
	if s.SessionID != "" {
		fmt.Fprintf(tw, "Session:\t%s\n", s.SessionID)
	}
	if s.Error != "" {
		fmt.Fprintf(tw, "Error:\t%s\n", s.Error)
	}
	tw.Flush() //nolint:errcheck

	if len(s.Failed) == 0 {
		return
	}
	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tTYPE\tERROR")
	for _, f := range s.Failed {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", f.Key, f.ErrorType, truncate(f.Error, 80))
	}
	tw.Flush() //nolint:errcheck
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func addScrapeFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Int("workers", 0, "concurrent browser tabs (default from config)")
	f.Int("start-page", 0, "first listing page to crawl")
	f.Int("max-pages", 0, "listing pages to crawl, 0 for all reported pages")
	f.Bool("all", false, "keep crawling until an empty page when the page count is unknown")
	f.Bool("visible", false, "run the browser with a window")
	f.Bool("no-documents", false, "skip the bid documents modal")
	f.String("from", "", "publish date from (DD-Mon-YYYY, TODAY, YESTERDAY or AUTO)")
	f.String("to", "", "publish date to (DD-Mon-YYYY, TODAY, YESTERDAY or AUTO)")
	f.String("classification", "", "listing classification filter")
	f.String("category", "", "listing business category filter")
}

func init() {
	addScrapeFlags(scrapeCmd)
	rootCmd.AddCommand(scrapeCmd)
}
