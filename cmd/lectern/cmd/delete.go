package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/lectern-labs/lectern/internal/output"
)

func newDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <book-id>",
		Short: "Delete a book's index and concept map",
		Long: `Delete every persisted artifact for a book: the vector index,
its mapping and chunk tables, and the concept map. Deleting a book
that was never indexed is not an error.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(cmd, args[0])
		},
	}
	return cmd
}

func runDelete(cmd *cobra.Command, bookID string) error {
	out := output.New(cmd.OutOrStdout())

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	svc, err := newIndexService(cfg)
	if err != nil {
		return err
	}
	if err := svc.DeleteBook(cmd.Context(), bookID); err != nil {
		return err
	}

	store, err := newConceptStore(cfg)
	if err != nil {
		return err
	}
	if err := store.Delete(bookID); err != nil {
		return err
	}

	slog.Info("book_deleted", slog.String("book_id", bookID))
	out.Successf("Deleted all artifacts for %q", bookID)
	return nil
}
