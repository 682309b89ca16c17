package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	boarderrors "github.com/randalmurphal/taskboard/internal/errors"
	"github.com/randalmurphal/taskboard/internal/task"
)

func newTaskNotesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notes",
		Short: "Export or rewrite a task's work-note ledger",
	}
	cmd.AddCommand(newTaskNotesExportCmd())
	cmd.AddCommand(newTaskNotesReplaceCmd())
	return cmd
}

func newTaskNotesExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <task>",
		Short: "Print a task's ledger as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			tk, err := a.store.ResolveTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return newOutput(cmd).JSON(tk.WorkNotes)
		},
	}
}

func newTaskNotesReplaceCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "replace <task> <file|->",
		Short: "Rewrite a task's entire ledger",
		Long: `Replace a task's work-note ledger with the notes read from a file.

This discards the existing history and is refused without --force. Input
that contains unreadable entries is refused too, so a malformed file never
wipes a ledger.

Example:
  taskboard task notes export 12 > notes.json
  $EDITOR notes.json
  taskboard task notes replace 12 notes.json --force`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return boarderrors.ErrValidation("force",
					"replacing discards the existing ledger; pass --force to confirm")
			}
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			ctx := cmd.Context()

			tk, err := a.store.ResolveTask(ctx, args[0])
			if err != nil {
				return err
			}
			raw, err := readLedgerInput(cmd, args[1])
			if err != nil {
				return err
			}
			notes, clean := task.NormalizeBatch(raw, a.store.Now())
			if !clean {
				return boarderrors.ErrValidation("notes", "input has entries that are not readable notes")
			}
			replaced, err := a.store.ReplaceWorkNotes(ctx, tk.ID, notes)
			if err != nil {
				return err
			}
			a.logger.Info("work notes replaced", "task", tk.Number, "discarded", len(tk.WorkNotes), "notes", len(replaced))

			out := newOutput(cmd)
			if jsonOut {
				return out.JSON(replaced)
			}
			out.Printf("Replaced %d note(s) on %s with %d\n", len(tk.WorkNotes), tk.Ref(), len(replaced))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "confirm discarding the existing ledger")
	return cmd
}

// readLedgerInput reads raw ledger input from a file, or stdin for "-".
func readLedgerInput(cmd *cobra.Command, src string) (string, error) {
	var (
		data []byte
		err  error
	)
	if src == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(src)
	}
	if err != nil {
		return "", fmt.Errorf("read notes: %w", err)
	}
	return string(data), nil
}
