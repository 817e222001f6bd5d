package main

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"

	"bitbucket.org/kleinnic74/pinphotos/consts"
	"bitbucket.org/kleinnic74/pinphotos/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:               "pinphotos",
	DisableAutoGenTag: true,
	Short:             "Photos of the places you pinned",
	Long: `pinphotos keeps a collection of map pins and, for every pin, the photos
taken around it. Photos are searched on Flickr, downloaded in albums and
persisted together with the pin.`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, _ []string) {
		if err := cmd.Help(); err != nil {
			logging.From(context.Background()).Error("Error displaying help", zap.Error(err))
		}
	},
}

// NewRootCmd creates the root command with all subcommands attached
func NewRootCmd() *cobra.Command {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to configuration file (YAML or JSON)")
	flags.String("libdir", "", "Path to the pin library")
	flags.Bool("dev", false, "Enable development mode")
	for _, key := range []string{"config", "libdir", "dev"} {
		if err := viper.BindPFlag(key, flags.Lookup(key)); err != nil {
			logging.From(context.Background()).Fatal("Error binding flag", zap.String("flag", key), zap.Error(err))
		}
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(pinsCmd)
	rootCmd.AddCommand(versionCmd)
	return rootCmd
}

type versionInfo struct {
	Commit    string `json:"commit"`
	Repo      string `json:"repo"`
	GoVersion string `json:"go"`
	Platform  string `json:"platform"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, _ []string) error {
		info := versionInfo{
			Commit:    consts.GitCommit,
			Repo:      consts.GitRepo,
			GoVersion: runtime.Version(),
			Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		}
		format, err := cmd.Flags().GetString("format")
		if err != nil {
			return err
		}
		if format == "json" {
			output, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(output))
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "pinphotos %s (%s, %s, %s)\n", info.Commit, info.Repo, info.GoVersion, info.Platform)
		return nil
	},
}

func init() {
	versionCmd.Flags().String("format", "", "Output format (json)")
}
