package main

import (
	"fmt"
	"strings"

	"bitbucket.org/kleinnic74/pinphotos/app"
	"github.com/spf13/viper"
)

const envPrefix = "PINPHOTOS"

// setDefaults registers every option so that environment variables are
// picked up by Unmarshal even when no config file sets the key
func setDefaults(v *viper.Viper, o app.Options) {
	v.SetDefault("libdir", o.LibDir)
	v.SetDefault("port", o.Port)
	v.SetDefault("dev", o.Logging.DevMode)

	v.SetDefault("flickr.apikey", o.Flickr.APIKey)
	v.SetDefault("flickr.endpoint", o.Flickr.Endpoint)
	v.SetDefault("flickr.timeout", o.Flickr.Timeout)
	v.SetDefault("flickr.halfwidth", o.Flickr.HalfWidth)
	v.SetDefault("flickr.halfheight", o.Flickr.HalfHeight)
	v.SetDefault("flickr.safesearch", o.Flickr.SafeSearch)

	v.SetDefault("album.size", o.Album.Size)
	v.SetDefault("album.perpage", o.Album.PerPage)

	v.SetDefault("download.parallelism", o.Download.Parallelism)
	v.SetDefault("download.timeout", o.Download.Timeout)

	v.SetDefault("logging.devmode", o.Logging.DevMode)
	v.SetDefault("logging.file", o.Logging.File)
	v.SetDefault("logging.loggly", o.Logging.LogglyToken)
	v.SetDefault("logging.memory", o.Logging.MemoryLines)
}

// loadOptions merges defaults, the optional config file, PINPHOTOS_*
// environment variables and command line flags, in increasing precedence
func loadOptions(v *viper.Viper) (app.Options, error) {
	o := app.DefaultOptions()
	setDefaults(v, o)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return o, fmt.Errorf("failed to read configuration %s: %w", path, err)
		}
	}
	if err := v.Unmarshal(&o); err != nil {
		return o, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if v.GetBool("dev") {
		o.Logging.DevMode = true
	}
	return o, nil
}
