package consts

import (
	"strconv"
	"strings"
)

// devmode is set through -ldflags and can be forced on by configuration at startup
var devmode string = "false"

func IsDevMode() bool {
	return strings.ToLower(devmode) == "true"
}

// SetDevMode must be called before any other package reads the dev mode flag
func SetDevMode(enabled bool) {
	devmode = strconv.FormatBool(enabled)
}
