package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Noofbiz/batchfeed/minibatch"
)

var orderCmd = &cobra.Command{
	Use:   "order",
	Short: "Print the chunk order of the first epoch",
	RunE:  runOrder,
}

func init() {
	rootCmd.AddCommand(orderCmd)
}

func runOrder(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	chunks, closeSource, err := cfg.OpenSource()
	if err != nil {
		return err
	}
	defer closeSource()

	src, err := minibatch.New(chunks, cfg.Options()...)
	if err != nil {
		return err
	}

	order := src.ChunkOrder()
	ids := make([]string, len(order))
	for i, id := range order {
		ids[i] = strconv.Itoa(id)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), strings.Join(ids, " "))
	return err
}
