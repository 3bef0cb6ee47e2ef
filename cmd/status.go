package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jixoai/openspecui-kernel/internal/cliexec"
	"github.com/jixoai/openspecui-kernel/internal/config"
	"github.com/jixoai/openspecui-kernel/internal/kernel"
	"github.com/jixoai/openspecui-kernel/internal/reactivefs"
	"github.com/jixoai/openspecui-kernel/internal/watch"
)

var statusTimeout time.Duration

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the workspace's current status list as JSON and exit",
	Long: `Runs the kernel's full warm-up, which resolves every active change's
status, prints the status list as JSON, and exits. Useful for scripting and for
verifying a workspace is readable without starting a long-running server.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().DurationVar(&statusTimeout, "timeout", 15*time.Second, "maximum time to wait for warm-up")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	root, err := config.WorkspaceRoot(workspaceRootFlag)
	if err != nil {
		return err
	}
	openspecPath, err := config.OpenspecPath(openspecPathFlag)
	if err != nil {
		return err
	}

	pool, err := watch.New(watch.NewOSWatcher)
	if err != nil {
		return err
	}
	defer pool.Close()

	k := kernel.New(root, reactivefs.New(pool), cliexec.NewProcessExecutor(openspecPath, root))
	defer k.Close()

	ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
	defer cancel()

	if err := k.Warmup(ctx); err != nil {
		return fmt.Errorf("warm-up failed: %w", err)
	}

	statusList, err := k.GetStatusList()
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(statusList)
}
