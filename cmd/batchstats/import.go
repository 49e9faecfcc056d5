package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/Noofbiz/batchfeed/datasets"
)

var importOut string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Snapshot the configured source into a SQLite store",
	Long: `Reads every chunk of the configured source and writes it into a new
SQLite file. The file can then be used with source.kind = "sqlite".`,
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVarP(&importOut, "out", "o", "", "path of the SQLite file to create")
	_ = importCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	src, closeSource, err := cfg.OpenSource()
	if err != nil {
		return err
	}
	defer closeSource()

	klog.Infof("importing %d chunks from %s into %s", src.NumChunks(), cfg.Source.Path, importOut)
	if err := datasets.CreateSQLite(importOut, src); err != nil {
		return fmt.Errorf("import: %w", err)
	}

	info, err := os.Stat(importOut)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s: %s chunks, %d streams, %s\n", importOut,
		humanize.Comma(int64(src.NumChunks())), len(src.StreamDescriptors()), humanize.Bytes(uint64(info.Size())))
	return nil
}
