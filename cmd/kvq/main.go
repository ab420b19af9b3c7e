package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const version = "0.3.0"

// rootOptions are the flags shared by every subcommand.
type rootOptions struct {
	configPath string
	v          *viper.Viper
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{v: viper.New()}

	root := &cobra.Command{
		Use:           "kvq",
		Short:         "Device-scoped key-value store with a query builder",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "config file (yaml, json or toml)")
	pf.String("data-dir", "", "data directory (env KVQ_STORAGE_DATA_DIR)")
	pf.Bool("in-memory", false, "keep data in memory only")
	pf.String("device", "", "local device ID (env KVQ_DEVICE_ID)")
	pf.String("log-level", "", "debug, info, warn or error")
	pf.String("log-format", "", "json or console")

	bind := map[string]string{
		"storage.data_dir":  "data-dir",
		"storage.in_memory": "in-memory",
		"device.id":         "device",
		"log.level":         "log-level",
		"log.format":        "log-format",
	}
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		for key, flag := range bind {
			if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
				if err := opts.v.BindPFlag(key, f); err != nil {
					return err
				}
			}
		}
		return nil
	}

	root.AddCommand(
		newServeCmd(opts),
		newPutCmd(opts),
		newGetCmd(opts),
		newDeleteCmd(opts),
		newQueryCmd(opts),
		newRenderCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "kvq %s\n", version)
			},
		},
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
