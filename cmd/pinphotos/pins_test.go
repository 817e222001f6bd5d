package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"text/tabwriter"

	"bitbucket.org/kleinnic74/pinphotos/domain/gps"
	"bitbucket.org/kleinnic74/pinphotos/library"
	"bitbucket.org/kleinnic74/pinphotos/library/boltstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

func TestListPins(t *testing.T) {
	db, err := bolt.Open(filepath.Join(t.TempDir(), "pins.db"), 0600, nil)
	require.NoError(t, err)
	repo, err := boltstore.NewBoltStore(db)
	require.NoError(t, err)
	defer repo.Close()

	ctx := context.Background()
	pin := library.NewPin(gps.NewCoordinates(48.8584, 2.2945))
	require.NoError(t, repo.AddPin(ctx, pin))
	_, err = repo.RunBatch(ctx, library.Batch{Pin: pin.ID, Add: [][]byte{[]byte("a"), []byte("b")}})
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, listPins(ctx, repo, tabwriter.NewWriter(&out, 0, 4, 2, ' ', 0)))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, []string{"ID", "LATITUDE", "LONGITUDE", "PHOTOS"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{string(pin.ID), "48.858400", "2.294500", "2"}, strings.Fields(lines[1]))
}

func TestVersionJSON(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	require.NoError(t, versionCmd.Flags().Set("format", "json"))
	require.NoError(t, versionCmd.RunE(versionCmd, nil))
	assert.Contains(t, out.String(), `"commit": "unknown"`)
}
