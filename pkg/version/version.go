package version

import (
	"fmt"
	"runtime"
)

// Name is the program name used for the root command and User-Agent
const Name = "gdfetch"

// Set at build time with -ldflags "-X github.com/dl-alexandre/gdfetch/pkg/version.Version=..."
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Info describes the running build
type Info struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

func Get() *Info {
	return &Info{
		Name:      Name,
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func (i *Info) String() string {
	return fmt.Sprintf("%s %s (%s) built %s %s", i.Name, i.Version, i.GitCommit, i.BuildTime, i.Platform)
}

// UserAgent returns the fragment appended to API request User-Agent headers, e.g. "gdfetch/1.2.3"
func UserAgent() string {
	return Name + "/" + Version
}
