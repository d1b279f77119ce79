package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bastiangx/suggestserve/pkg/ingest"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Load items from a file into the store",
	Long: `Upserts every item in the file into the configured store. Items are
matched on text and language, so re-ingesting a file updates popularity
instead of adding duplicates.

Supported formats are picked by extension:
` + formatList(),
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

var exportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Write all stored items to a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(exportCmd)
}

func formatList() string {
	var b strings.Builder
	for _, f := range ingest.ListSupportedFormats() {
		fmt.Fprintf(&b, "  %-24s %s\n", strings.Join(f.Extensions, ", "), f.Description)
	}
	return b.String()
}

func runIngest(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), cfg, "")
	if err != nil {
		return err
	}
	defer a.Close()

	start := time.Now()
	n, err := ingest.Seed(cmd.Context(), args[0], a.catalog)
	if err != nil {
		return err
	}
	st := a.catalog.Status()
	cmd.Printf("ingested %d items in %v (store version %d)\n", n, time.Since(start).Round(time.Millisecond), st.StoreVersion)
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	n, err := ingest.Export(args[0], st.All(cmd.Context()))
	if err != nil {
		return err
	}
	cmd.Printf("exported %d items to %s\n", n, args[0])
	return nil
}
