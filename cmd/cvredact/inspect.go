package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/raaihank/cv-anonymizer/internal/audit"
	"github.com/raaihank/cv-anonymizer/internal/normalize"
	"github.com/raaihank/cv-anonymizer/internal/redact"
	"github.com/raaihank/cv-anonymizer/internal/sections"
	"github.com/raaihank/cv-anonymizer/internal/stats"
)

const statsTimeout = 10 * time.Second

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List detection rules in application order",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		engine, err := redact.New(cfg.Redaction, log)
		if err != nil {
			return err
		}

		table := tablewriter.NewWriter(cmd.OutOrStdout())
		table.SetHeader([]string{"Order", "Rule", "Enabled", "Masks", "Description"})
		table.SetAutoWrapText(false)
		table.SetBorder(false)
		for _, rule := range engine.Rules() {
			masks := make([]string, len(rule.Emits))
			for i, c := range rule.Emits {
				masks[i] = string(c.Token())
			}
			table.Append([]string{strconv.Itoa(rule.Order), rule.Name, strconv.FormatBool(rule.Enabled), strings.Join(masks, " "), rule.Description})
		}
		table.Render()
		return nil
	},
}

var sectionsCmd = &cobra.Command{
	Use:   "sections [file]",
	Short: "Report which résumé sections a document contains",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		doc, _, err := readDocument(cmd.InOrStdin(), args, cfg.Server.MaxUploadBytes)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), sections.Detect(doc.Text))
	},
}

var normalizeCmd = &cobra.Command{
	Use:   "normalize [file]",
	Short: "Lowercase and strip accents for limited-charset renderers",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		doc, _, err := readDocument(cmd.InOrStdin(), args, cfg.Server.MaxUploadBytes)
		if err != nil {
			return err
		}
		_, err = io.WriteString(cmd.OutOrStdout(), normalize.ForLimitedCharset(doc.Text))
		return err
	},
}

var statsReset bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregated redaction counters",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		recorder, err := stats.New(cfg.Stats, log)
		if err != nil {
			return err
		}
		defer recorder.Close()

		ctx, cancel := statsContext(cmd)
		defer cancel()

		if statsReset {
			return recorder.Reset(ctx)
		}
		snap, err := recorder.Snapshot(ctx)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), snap)
	},
}

var auditLimit int

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "List the most recent audit entries",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		store, err := audit.NewStore(cfg.Audit, log)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx, cancel := statsContext(cmd)
		defer cancel()

		entries, err := store.Recent(ctx, auditLimit)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), entries)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "cvredact %s\n", version)
	},
}

func init() {
	statsCmd.Flags().BoolVar(&statsReset, "reset", false, "Reset every counter")
	auditCmd.Flags().IntVarP(&auditLimit, "limit", "n", 20, "Number of entries")

	rootCmd.AddCommand(rulesCmd, sectionsCmd, normalizeCmd, statsCmd, auditCmd, versionCmd)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
