package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ossyrian/npaparse/internal/resolver"
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect which title an archive belongs to",
	RunE:  detectTitle,
}

func init() {
	detectCmd.Flags().Bool("all", false, "report every title that decodes the archive")
}

// detectTitle runs title detection and prints the result
func detectTitle(cmd *cobra.Command, args []string) error {
	all, _ := cmd.Flags().GetBool("all")

	closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLog()

	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	if reg.Loaded() == 0 {
		slog.Warn("no substitution tables loaded, only unencrypted archives can be detected")
	}

	a, err := openArchive(cfg.InputFile)
	if err != nil {
		return err
	}
	defer a.Close()

	res := resolver.New(reg, slog.Default())
	out := cmd.OutOrStdout()

	if !all {
		p, err := res.Resolve(a.reader)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\t%s\n", p.ID, p.Name)
		return nil
	}

	matches, err := res.Matches(a.reader)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return resolver.ErrNoTitle
	}
	for _, p := range matches {
		fmt.Fprintf(out, "%s\t%s\t%s\n", p.ID, p.Name, p.Family)
	}
	return nil
}
