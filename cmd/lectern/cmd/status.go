package cmd

import (
	"github.com/spf13/cobra"

	"github.com/lectern-labs/lectern/internal/output"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show indexed books and concept maps",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd)
		},
	}
	return cmd
}

func runStatus(cmd *cobra.Command) error {
	out := output.New(cmd.OutOrStdout())

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	svc, err := newIndexService(cfg)
	if err != nil {
		return err
	}
	indexed, err := svc.ListBookIDs()
	if err != nil {
		return err
	}

	store, err := newConceptStore(cfg)
	if err != nil {
		return err
	}
	maps, err := store.ListBookIDs()
	if err != nil {
		return err
	}

	hasMap := make(map[string]bool, len(maps))
	for _, id := range maps {
		hasMap[id] = true
	}

	out.Header("Lectern status")
	out.Printf("Data directory: %s\n\n", cfg.Storage.DataDir)

	if len(indexed) == 0 {
		out.Dim("No books indexed yet. Run 'lectern index <book.json>' to start.")
		return nil
	}

	out.Printf("%-30s %s\n", "BOOK", "CONCEPT MAP")
	for _, id := range indexed {
		mark := "no"
		if hasMap[id] {
			mark = "yes"
		}
		out.Printf("%-30s %s\n", id, mark)
	}

	// Concept maps without a surviving index are worth flagging.
	for _, id := range maps {
		if !containsID(indexed, id) {
			out.Warningf("concept map for %q has no index", id)
		}
	}

	out.Newline()
	out.Printf("%d books indexed, %d concept maps\n", len(indexed), len(maps))
	return nil
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
