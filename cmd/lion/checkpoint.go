package main

import (
	"fmt"

	"github.com/lion-dev/lion/internal/checkpoint"
	"github.com/lion-dev/lion/internal/domain"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	checkpointCmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Inspect and prune workflow checkpoints",
	}
	checkpointCmd.AddCommand(newCheckpointListCmd())
	checkpointCmd.AddCommand(newCheckpointPruneCmd())
	rootCmd.AddCommand(checkpointCmd)
}

func newManager() (*checkpoint.Manager, error) {
	backend, err := checkpoint.NewFileBackend(viper.GetString("checkpoint_dir"))
	if err != nil {
		return nil, fmt.Errorf("open checkpoint storage: %w", err)
	}
	return checkpoint.New(backend, viper.GetString("schema_version")), nil
}

func newCheckpointListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <workflow-id>",
		Short: "List checkpoints stored for a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := newManager()
			if err != nil {
				return err
			}
			list, err := manager.List(cmd.Context(), domain.WorkflowID(args[0]))
			if err != nil {
				return err
			}
			for _, meta := range list {
				fmt.Printf("%s\tcreated=%s\tsize=%d\n", meta.ID, meta.CreatedAt.Format("2006-01-02T15:04:05Z07:00"), meta.Size)
			}
			return nil
		},
	}
}

func newCheckpointPruneCmd() *cobra.Command {
	var keep int
	cmd := &cobra.Command{
		Use:   "prune <workflow-id>",
		Short: "Delete all but the newest checkpoints for a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := newManager()
			if err != nil {
				return err
			}
			deleted, err := manager.Prune(cmd.Context(), domain.WorkflowID(args[0]), keep)
			if err != nil {
				return err
			}
			fmt.Printf("deleted %d checkpoint(s)\n", deleted)
			return nil
		},
	}
	cmd.Flags().IntVar(&keep, "keep", 5, "number of newest checkpoints to retain")
	return cmd
}
