package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ossyrian/npaparse/internal/resolver"
	"github.com/ossyrian/npaparse/internal/titles"
	npatypes "github.com/ossyrian/npaparse/internal/types"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the entry table of an archive",
	RunE:  listArchive,
}

func init() {
	listCmd.Flags().String("json", "", "write the listing as JSON to this file instead of printing a table")
}

// listArchive prints or writes the decoded entry table
func listArchive(cmd *cobra.Command, args []string) error {
	bindLocal(cmd, map[string]string{"json_output": "json"})

	closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLog()

	reg, err := loadRegistry()
	if err != nil {
		return err
	}

	a, err := openArchive(cfg.InputFile)
	if err != nil {
		return err
	}
	defer a.Close()

	// names only depend on the key variant, so an undetected title still lists
	p, err := a.profile(reg)
	if errors.Is(err, resolver.ErrNoTitle) || errors.Is(err, titles.ErrMissingTable) {
		slog.Warn("title unknown, names may not decode", "error", err)
		p = nil
	} else if err != nil {
		return err
	}

	entries, err := a.entries(p)
	if err != nil {
		return fmt.Errorf("failed to read entry table: %w", err)
	}

	listing := npatypes.NewListing(cfg.InputFile, a.header, entries, p)

	if cfg.JSONOutput != "" {
		data, err := json.MarshalIndent(listing, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode listing: %w", err)
		}
		if err := os.WriteFile(cfg.JSONOutput, data, 0o644); err != nil {
			return fmt.Errorf("failed to write listing: %w", err)
		}
		slog.Info("wrote listing", "path", cfg.JSONOutput, "entries", len(listing.Entries))
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "index\tkind\tfile id\toffset\tstored\tsize\tpath\t")
	for _, e := range listing.Entries {
		fmt.Fprintf(w, "%d\t%s\t%d\t%#x\t%d\t%d\t%s\t\n",
			e.Index, e.Kind, e.FileID, e.Offset, e.CompressedSize, e.OriginalSize, e.Path)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%d files, %d directories, %d bytes\n",
		len(listing.Files()), len(listing.Entries)-len(listing.Files()), listing.TotalSize())

	return nil
}
