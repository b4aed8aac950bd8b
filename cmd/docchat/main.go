package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"docchat/internal/app"
	"docchat/internal/tui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

const version = "1.0.0"

var (
	flagConfig string
	flagMock   bool
)

func buildApplication() (*app.Application, error) {
	cfg, err := app.LoadConfig(flagConfig)
	if err != nil {
		return nil, err
	}
	return app.NewApplication(cfg, flagMock), nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()
	return ctx, cancel
}

func main() {
	root := &cobra.Command{
		Use:     "docchat",
		Short:   "Chat with your uploaded documents from the terminal",
		Long:    "docchat is an interactive terminal client for a document Q&A service.\n\nUpload PDFs, ask questions about them, and manage persisted conversation threads.\nUse without arguments for the TUI, or the 'docs' subcommands for scripted document management.",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := buildApplication()
			if err != nil {
				return err
			}
			p := tea.NewProgram(tui.New(application), tea.WithAltScreen())
			if _, err := p.Run(); err != nil {
				return err
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config file (default: user config dir)")
	root.PersistentFlags().BoolVar(&flagMock, "mock", false, "run against an in-memory mock service")

	docsCmd := &cobra.Command{
		Use:   "docs",
		Short: "Manage documents in the remote store",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List uploaded documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := buildApplication()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			if err := application.Documents.Refresh(ctx); err != nil {
				return err
			}
			docs := application.Documents.Documents()
			if len(docs) == 0 {
				fmt.Println("No documents uploaded yet.")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "FILENAME\tSIZE\tUPLOADED")
			for _, d := range docs {
				fmt.Fprintf(w, "%s\t%s\t%s\n", d.Filename, d.SizeFormatted, d.UploadedOnFormatted)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Printf("\n%d document(s), provider: %s\n", len(docs), application.Documents.Provider())
			return nil
		},
	}

	uploadCmd := &cobra.Command{
		Use:   "upload <file.pdf>",
		Short: "Upload and ingest a PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := buildApplication()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			if fi, err := os.Stat(args[0]); err == nil {
				fmt.Printf("Uploading %s (%s)...\n", args[0], humanize.Bytes(uint64(fi.Size())))
			}
			result, err := application.Documents.Upload(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Successfully uploaded! Created %d chunks.\n", result.Chunks)
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <filename>",
		Short: "Delete an uploaded document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := buildApplication()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			uploadedAt, _ := cmd.Flags().GetString("uploaded-at")
			if err := application.Documents.Delete(ctx, args[0], uploadedAt); err != nil {
				return err
			}
			fmt.Printf("Document %q deleted successfully.\n", args[0])
			return nil
		},
	}
	deleteCmd.Flags().String("uploaded-at", "", "upload timestamp to disambiguate same-named files")

	getCmd := &cobra.Command{
		Use:   "get <filename>",
		Short: "Download a stored document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := buildApplication()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			dest, _ := cmd.Flags().GetString("out")
			path, err := application.Documents.Download(ctx, args[0], dest)
			if err != nil {
				return err
			}
			fmt.Printf("Saved to %s\n", path)
			return nil
		},
	}
	getCmd.Flags().String("out", ".", "directory to save the document into")

	docsCmd.AddCommand(listCmd, uploadCmd, deleteCmd, getCmd)
	root.AddCommand(docsCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
