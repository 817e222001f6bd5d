package consts

// Set at build time with -ldflags "-X bitbucket.org/kleinnic74/pinphotos/consts.GitCommit=..."
var (
	GitCommit = "unknown"
	GitRepo   = "bitbucket.org/kleinnic74/pinphotos"
)
