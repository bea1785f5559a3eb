package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

const devVersion = "0.1.0-dev"

// Overridden at release time with -ldflags "-X github.com/openmined/docbox/internal/version.Version=...".
var (
	AppName   = "Docbox"
	Version   = devVersion
	Revision  = "HEAD"
	BuildDate = ""
)

// Info is the machine readable form printed by `docbox version --output`.
type Info struct {
	App       string `json:"app" yaml:"app"`
	Version   string `json:"version" yaml:"version"`
	Revision  string `json:"revision" yaml:"revision"`
	BuildDate string `json:"build_date" yaml:"build_date"`
	Go        string `json:"go" yaml:"go"`
	Platform  string `json:"platform" yaml:"platform"`
}

// String renders `0.1.0 (5e23a4; go1.24.0; linux/amd64; 2026-01-02T03:04:05Z)`.
func (i Info) String() string {
	return fmt.Sprintf("%s (%s; %s; %s; %s)", i.Version, i.Revision, i.Go, i.Platform, i.BuildDate)
}

func Current() Info {
	return Info{
		App:       AppName,
		Version:   Version,
		Revision:  Revision,
		BuildDate: BuildDate,
		Go:        runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func Detailed() string {
	return Current().String()
}

func DetailedWithApp() string {
	return AppName + " " + Detailed()
}

// fillFromBuildInfo fills whatever ldflags left at its default from the module version
// and the vcs stamps of info.
func fillFromBuildInfo(info *debug.BuildInfo) {
	if info == nil {
		return
	}

	if Version == devVersion || Version == "" {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			Version = strings.TrimPrefix(v, "v")
		}
	}

	var revision, modified, stamped string
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			modified = s.Value
		case "vcs.time":
			stamped = s.Value
		}
	}

	if (Revision == "HEAD" || Revision == "") && revision != "" {
		if modified == "true" {
			revision += "-dirty"
		}
		Revision = revision
	}
	if BuildDate == "" {
		BuildDate = stamped
	}
}

func init() {
	info, _ := debug.ReadBuildInfo()
	fillFromBuildInfo(info)
	if BuildDate == "" {
		BuildDate = time.Now().UTC().Format(time.RFC3339)
	}
}
