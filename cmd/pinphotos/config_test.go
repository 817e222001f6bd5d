package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"bitbucket.org/kleinnic74/pinphotos/app"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOptionsDefaults(t *testing.T) {
	o, err := loadOptions(viper.New())
	require.NoError(t, err)
	assert.Equal(t, app.DefaultOptions(), o)
}

func TestLoadOptionsPrecedence(t *testing.T) {
	config := filepath.Join(t.TempDir(), "pinphotos.yaml")
	require.NoError(t, os.WriteFile(config, []byte(`
libdir: /var/lib/pins
flickr:
  apikey: from-file
  timeout: 3s
album:
  size: 12
download:
  parallelism: 2
`), 0644))
	t.Setenv("PINPHOTOS_FLICKR_APIKEY", "from-env")
	t.Setenv("PINPHOTOS_ALBUM_PERPAGE", "7")

	v := viper.New()
	v.Set("config", config)
	v.Set("dev", true)
	o, err := loadOptions(v)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/pins", o.LibDir)
	assert.Equal(t, "from-env", o.Flickr.APIKey)
	assert.Equal(t, 3*time.Second, o.Flickr.Timeout)
	assert.Equal(t, 12, o.Album.Size)
	assert.Equal(t, 7, o.Album.PerPage)
	assert.Equal(t, 2, o.Download.Parallelism)
	assert.Equal(t, app.DefaultOptions().Download.Timeout, o.Download.Timeout)
	assert.True(t, o.Logging.DevMode)
	assert.NoError(t, o.Validate())
}

func TestLoadOptionsBadConfigFile(t *testing.T) {
	v := viper.New()
	v.Set("config", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := loadOptions(v)
	assert.Error(t, err)
}
