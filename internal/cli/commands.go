package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/XiaoConstantine/bmark/internal/mcp"
	"github.com/XiaoConstantine/bmark/pkg/index"
	"github.com/XiaoConstantine/bmark/pkg/semantic"
)

// Find command
var findCmd = &cobra.Command{
	Use:   "find <query>",
	Short: "List bookmarks matching a boolean query",
	Long: `Boolean queries combine words, "quoted phrases" and prefixed terms with
and, or, not and parentheses. Adjacent terms are joined with and.

  #tag     tag or any tag below it (#lang matches lang/go)
  .word    title contains word
  >word    description contains word
  :word    url contains word`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newClient()
		if err != nil {
			return err
		}
		defer client.Close()

		found, err := client.Filter(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), found)
		}
		return writeBookmarks(cmd.OutOrStdout(), found, quiet)
	},
}

// Index command
var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Embed new and edited bookmarks into the semantic index",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newClient()
		if err != nil {
			return err
		}
		defer client.Close()

		stats, err := client.Sync(cmd.Context())
		if err != nil {
			return fmt.Errorf("index failed: %w", err)
		}
		return printSync(cmd, stats)
	},
}

// Watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-index whenever the bookmark file changes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg, err := newClient()
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if !quiet {
			fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s (Ctrl+C to stop)\n", cfg.Bookmarks)
		}
		if err := client.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

// Status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index and embedding server status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newClient()
		if err != nil {
			return err
		}
		defer client.Close()

		st := client.Status()
		out := cmd.OutOrStdout()
		if jsonOutput {
			return writeJSON(out, st)
		}

		fmt.Fprintf(out, "Bookmarks: %s\n", st.Bookmarks)
		fmt.Fprintf(out, "Semantic: %s\n", enabled(st.Semantic.Enabled))
		fmt.Fprintf(out, "Model: %s (downloaded: %v)\n", st.Semantic.Model, st.ModelDownloaded)
		fmt.Fprintf(out, "Index: %s\n", st.Semantic.Path)
		if info, err := os.Stat(st.Semantic.Path); err == nil {
			fmt.Fprintf(out, "Size: %s\n", formatBytes(info.Size()))
		}
		fmt.Fprintf(out, "Server: %s", st.Endpoint)
		if st.ServerRunning {
			fmt.Fprintf(out, " (running %s)\n", st.ServerModel)
		} else {
			fmt.Fprintln(out, " (stopped)")
		}
		return nil
	},
}

// Setup command
var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Download the embedding model",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg, err := newClient()
		if err != nil {
			return err
		}
		defer client.Close()

		if err := client.Setup(cmd.Context()); err != nil {
			return err
		}
		if !quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "Model %s ready\n", cfg.Model)
		}
		return nil
	},
}

// Clear command
var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the stored semantic index",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newClient()
		if err != nil {
			return err
		}
		defer client.Close()

		if err := client.Clear(cmd.Context()); err != nil && !errors.Is(err, semantic.ErrDisabled) {
			return fmt.Errorf("failed to clear index: %w", err)
		}
		if !quiet {
			fmt.Fprintln(cmd.OutOrStdout(), "Index cleared")
		}
		return nil
	},
}

// Stop command
var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background embedding server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newClient()
		if err != nil {
			return err
		}
		defer client.Close()
		return client.StopServer()
	},
}

// MCP command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve bookmark search as MCP tools over stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// stdout carries the protocol
		quiet = true
		client, _, err := newClient()
		if err != nil {
			return err
		}
		defer client.Close()
		return mcp.NewServer(client).ServeStdio()
	},
}

func printSync(cmd *cobra.Command, stats index.SyncStats) error {
	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), stats)
	}
	if !quiet {
		fmt.Fprintln(cmd.OutOrStdout(), stats.String())
	}
	return nil
}

func enabled(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}
