package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tendant/simple-qa/pkg/simpleqa"
)

var fixDrift bool

// auditCmd compares File rows with the blob store
var auditCmd = &cobra.Command{
	Use:   "audit-files",
	Short: "Compare attachment metadata with the blob store",
	Long: `Check every attachment row against the blob store.

Rows whose cached size, etag or modification time differ from the store are
reported as drift; --fix refreshes them. Rows whose blob is gone are reported
as missing and left in place. Nothing is ever deleted.

Examples:
  qa-admin audit-files
  qa-admin audit-files --fix
  qa-admin audit-files --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAudit(cmd.Context(), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)

	auditCmd.Flags().BoolVar(&fixDrift, "fix", false, "Refresh drifted metadata from the blob store")
}

type auditRow struct {
	FileID    string `json:"file_id"`
	ObjectKey string `json:"blob_key"`
	Parent    string `json:"parent"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

func runAudit(ctx context.Context, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	components, err := cfg.Build(ctx, logger)
	if err != nil {
		return err
	}
	defer components.Close()

	entries, err := components.Attachments.Audit(ctx, fixDrift)
	if err != nil {
		return err
	}
	return writeAudit(out, entries, jsonOutput)
}

// writeAudit prints the audit and returns an error when any row still needs
// attention.
func writeAudit(out io.Writer, entries []simpleqa.AuditEntry, asJSON bool) error {
	rows := make([]auditRow, 0, len(entries))
	counts := map[simpleqa.AuditStatus]int{}
	for _, e := range entries {
		row := auditRow{
			FileID:    e.File.ID.String(),
			ObjectKey: e.File.ObjectKey,
			Parent:    e.File.Parent().String(),
			Status:    string(e.Status),
		}
		if e.Err != nil {
			row.Error = e.Err.Error()
		}
		rows = append(rows, row)
		counts[e.Status]++
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rows); err != nil {
			return err
		}
	} else {
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "FILE ID\tPARENT\tSTATUS\tBLOB KEY\tERROR")
		for _, row := range rows {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", row.FileID, row.Parent, row.Status, row.ObjectKey, row.Error)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(out, "\n%d files: %d ok, %d fixed, %d drift, %d missing, %d errors\n",
			len(entries), counts[simpleqa.AuditOK], counts[simpleqa.AuditFixed],
			counts[simpleqa.AuditDrift], counts[simpleqa.AuditMissing], counts[simpleqa.AuditError])
	}

	if bad := counts[simpleqa.AuditDrift] + counts[simpleqa.AuditMissing] + counts[simpleqa.AuditError]; bad > 0 {
		return fmt.Errorf("%d files need attention", bad)
	}
	return nil
}
