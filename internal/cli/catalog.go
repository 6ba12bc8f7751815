package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/JonMunkholm/ThreatBoard/internal/threat"
	"github.com/spf13/cobra"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog [attack-type]",
	Short: "Show the attack-type reference catalog",
	Long: `Print the description, impacts and remediation steps for each tracked
attack type, or for a single type when one is given.

Examples:
  threatctl catalog
  threatctl catalog model_inversion --format text`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCatalog,
}

func runCatalog(cmd *cobra.Command, args []string) error {
	catalog, err := threat.LoadCatalog()
	if err != nil {
		return err
	}

	entries := catalog.Entries()
	if len(args) == 1 {
		e, err := catalog.Find(args[0])
		if err != nil {
			return err
		}
		entries = []threat.CatalogEntry{e}
	}

	out := cmd.OutOrStdout()
	if outputFormat == "text" {
		writeCatalogText(out, entries)
		return nil
	}
	if len(args) == 1 {
		return writeJSON(out, entries[0])
	}
	return writeJSON(out, entries)
}

func writeCatalogText(w io.Writer, entries []threat.CatalogEntry) {
	for i, e := range entries {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s (%s)\n", e.Title, e.Type)
		fmt.Fprintf(w, "%s\n", strings.TrimSpace(e.Description))
		if len(e.Impacts) > 0 {
			fmt.Fprintln(w, "\nImpacts:")
			for _, s := range e.Impacts {
				fmt.Fprintf(w, "  - %s\n", s)
			}
		}
		if len(e.Remediation) > 0 {
			fmt.Fprintln(w, "\nRemediation:")
			for _, s := range e.Remediation {
				fmt.Fprintf(w, "  - %s\n", s)
			}
		}
	}
}
