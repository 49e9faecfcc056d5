// Command batchstats draws minibatches from a configured chunk source and
// reports what it served. It can also snapshot a source into a SQLite store
// and print the chunk order a seed produces.
//
//	batchstats run --config run.toml --plot plots
//	batchstats import --config run.toml --out data.db
//	batchstats order --config run.toml
package main

import (
	"flag"
	"os"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/Noofbiz/batchfeed/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "batchstats",
	Short:         "Inspect minibatches drawn from a chunked dataset",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "run.toml", "path to the TOML run configuration")

	klogFlags := flag.NewFlagSet("klog", flag.ExitOnError)
	klog.InitFlags(klogFlags)
	rootCmd.PersistentFlags().AddGoFlagSet(klogFlags)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("loaded %s: %s source %s", configPath, cfg.Source.Kind, cfg.Source.Path)
	return cfg, nil
}

func main() {
	defer klog.Flush()
	if err := rootCmd.Execute(); err != nil {
		klog.Errorf("%v", err)
		klog.Flush()
		os.Exit(1)
	}
}
