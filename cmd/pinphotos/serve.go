package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"bitbucket.org/kleinnic74/pinphotos/app"
	"bitbucket.org/kleinnic74/pinphotos/consts"
	"bitbucket.org/kleinnic74/pinphotos/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the pin photos server",
	Long: `Start the HTTP server exposing pins, their photo albums and the
notification streams. A Flickr API key is required, either in the
configuration file or through PINPHOTOS_FLICKR_APIKEY.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Uint("port", app.DefaultOptions().Port, "HTTP port to listen on")
	if err := viper.BindPFlag("port", serveCmd.Flags().Lookup("port")); err != nil {
		panic(err)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	o, err := loadOptions(viper.GetViper())
	if err != nil {
		return err
	}
	consts.SetDevMode(o.Logging.DevMode)
	if err := logging.Init(o.Logging); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logging.Close()

	logger, ctx := logging.SubFrom(context.Background(), "main")
	if err := o.Validate(); err != nil {
		logger.Error("Invalid configuration", zap.Error(err))
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger.Info("Starting", zap.String("commit", consts.GitCommit), zap.Bool("devmode", consts.IsDevMode()))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.NewApp(ctx, o, nil)
	if err != nil {
		logger.Error("Failed to initialize application", zap.Error(err))
		return err
	}
	return application.Run(ctx)
}
