package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/inkwell/internal/engine"
	"github.com/dshills/inkwell/internal/engine/node"
	"github.com/dshills/inkwell/internal/pageindex"
)

var indexCmd = &cobra.Command{
	Use:   "index <document.json>...",
	Short: "Register documents' references in the page index",
	Long: `Hydrates each document and records every reference target as a
page in the search index, so pages that documents already link to
come back as completion results. Existing entries are updated in
place.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := pageindex.NewStore(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening page index: %w", err)
	}
	defer store.Close()

	total := 0
	for _, path := range args {
		n, err := indexFile(cmd, store, path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		cmd.Printf("%s: %d reference(s)\n", path, n)
		total += n
	}
	cmd.Printf("indexed %d page(s) into %s\n", total, store.Path())
	return nil
}

func indexFile(cmd *cobra.Command, store *pageindex.Store, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	ed := engine.New()
	defer ed.Dispose()
	warnings, err := ed.LoadJSON(data)
	if err != nil {
		return 0, err
	}
	for _, w := range warnings {
		cmd.PrintErrf("warning: %s: %s\n", path, w)
	}

	var pages []pageindex.Page
	rerr := ed.Read(func(r *engine.ReadTx) {
		r.Walk(func(n *node.Node) bool {
			if n.Kind() == node.KindReference {
				title := n.Label()
				if title == "" {
					title = n.Target()
				}
				pages = append(pages, pageindex.Page{ID: n.Target(), Title: title})
			}
			return true
		})
	})
	if rerr != nil {
		return 0, rerr
	}

	for _, p := range pages {
		if err := store.Put(cmd.Context(), p); err != nil {
			return 0, fmt.Errorf("saving page %s: %w", p.ID, err)
		}
	}
	return len(pages), nil
}
