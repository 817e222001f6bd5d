package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"bitbucket.org/kleinnic74/pinphotos/app"
	"bitbucket.org/kleinnic74/pinphotos/library"
	"bitbucket.org/kleinnic74/pinphotos/library/boltstore"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	bolt "go.etcd.io/bbolt"
)

var pinsCmd = &cobra.Command{
	Use:   "pins",
	Short: "List the pins of the library with their photo counts",
	Long: `List the pins of the library. The database is locked by a running
server, stop it first.`,
	RunE: runPins,
}

func runPins(cmd *cobra.Command, _ []string) error {
	o, err := loadOptions(viper.GetViper())
	if err != nil {
		return err
	}
	path := app.DatabasePath(o.LibDir)
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	repo, err := boltstore.NewBoltStore(db)
	if err != nil {
		db.Close()
		return err
	}
	defer repo.Close()
	return listPins(cmd.Context(), repo, tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0))
}

func listPins(ctx context.Context, repo library.Repository, w *tabwriter.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	pins, err := repo.FetchPins(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "ID\tLATITUDE\tLONGITUDE\tPHOTOS")
	for _, p := range pins {
		count, err := repo.CountPhotos(ctx, p.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%.6f\t%.6f\t%d\n", p.ID, p.Latitude, p.Longitude, count)
	}
	return w.Flush()
}
