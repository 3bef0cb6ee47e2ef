package cmd

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/jixoai/openspecui-kernel/internal/cliexec"
	"github.com/jixoai/openspecui-kernel/internal/config"
	"github.com/jixoai/openspecui-kernel/internal/kernel"
	"github.com/jixoai/openspecui-kernel/internal/mcpsurface"
	"github.com/jixoai/openspecui-kernel/internal/reactivefs"
	"github.com/jixoai/openspecui-kernel/internal/watch"
	"github.com/jixoai/openspecui-kernel/internal/wsserver"
)

var serveWSAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the kernel, exposing it over MCP (stdio) and optionally WebSocket",
	Long: `Warms up the reactive kernel against a workspace, then exposes its
NamedState catalogue as MCP tools over stdio. Pass --ws-addr to also serve
live subscriptions over a WebSocket listener for UI clients.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveWSAddr, "ws-addr", "", "address to serve WebSocket subscriptions on (e.g. :7337); disabled when empty")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if debug {
		log.SetOutput(os.Stderr)
	}
	config.ApplyDebounceOverride()

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

	fs := reactivefs.New(pool)
	runner := cliexec.NewProcessExecutor(openspecPath, root)

	k := kernel.New(root, fs, runner)
	defer k.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		cancel()
	}()

	if err := k.Warmup(ctx); err != nil {
		log.Printf("serve: initial warm-up reported an error (continuing, state will self-heal on next watcher event): %v", err)
	}

	if serveWSAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/ws", wsserver.NewHandler(k))
		wsSrv := &http.Server{Addr: serveWSAddr, Handler: mux}
		go func() {
			if err := wsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("serve: websocket listener stopped: %v", err)
			}
		}()
		go func() {
			<-ctx.Done()
			wsSrv.Close()
		}()
		if debug {
			log.Printf("serve: websocket subscriptions available at ws://%s/ws", serveWSAddr)
		}
	}

	s := server.NewMCPServer(
		"openspecui-kernel",
		"v0.1.0",
		server.WithToolCapabilities(false),
		server.WithInstructions(serveInstructions),
	)
	mcpsurface.RegisterAll(s, k)

	if debug {
		log.Printf("serve: MCP server ready for workspace %s (openspec at %s)", root, openspecPath)
	}

	return server.ServeStdio(s)
}

const serveInstructions = `This MCP server exposes a reactive view over one OpenSpec workspace.

Tools:
- ensure_schemas, ensure_change_ids, ensure_status_list, ensure_project_config: workspace-wide views.
- ensure_schema_detail, ensure_schema_resolution, ensure_schema_files, ensure_schema_yaml, ensure_templates, ensure_template_contents: per-schema views (the template tools accept an optional schema argument).
- ensure_status, ensure_instructions, ensure_apply_instructions, ensure_change_metadata: per-change views.
- ensure_artifact_output, ensure_glob_artifact_files: artifact file content and glob matches.

Every tool returns the latest computed value; repeated calls are cheap once
the workspace has warmed up, since results are served from the kernel's
reactive cache rather than re-invoking the openspec CLI each time. For live
push updates instead of polling, connect a WebSocket client to the --ws-addr
listener and send {"op":"subscribe","key":"<name>",...} frames using the
same key names as the tools above (without the ensure_ prefix, camelCased).`
