package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "docmill",
	Short: "Docmill - Document conversion task service",
	Long: `Docmill is a document conversion service that turns Office
documents, PDFs, and scanned images into PDF or Markdown.

Tasks are queued in a SQL store, fetched from S3, converted through
LibreOffice and analyzer engines, and the artifacts are uploaded back
to the object store. One binary runs the API, the scheduler, and the
conversion workers.`,
	Version: Version,
}

func init() {
	// Set version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Docmill version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))
}
