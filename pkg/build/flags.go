// SPDX-License-Identifier: MIT
//
// Package build exposes metadata embedded at link time:
//
//	go build -ldflags "-X doppler/pkg/build.buildName=doppler \
//	  -X doppler/pkg/build.buildVersion=0.3.0 ..."
//
// Development builds run without it and report "dev" values.
package build

import (
	"errors"
	"fmt"
)

const description = "Ultrasonic Doppler gesture sensing and dual-tone frequency analysis"

// Info describes the running binary.
type Info struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// String formats the version line printed by --version.
func (i Info) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", i.Name, i.Version, i.Commit, i.Time)
}

// Package-level variables for build information, populated by -ldflags.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildInfo    = defaultInfo()
)

func defaultInfo() *Info {
	return &Info{
		Name:        "doppler",
		Description: description,
		Time:        "unknown",
		Commit:      "unknown",
		Version:     "dev",
	}
}

// Initialize copies the link-time values into the build information. It
// returns an error naming every missing value; the development defaults
// stay in place when it does.
func Initialize() error {
	var errs []error
	if buildName == "" {
		errs = append(errs, errors.New("BuildName is required"))
	}
	if buildTime == "" {
		errs = append(errs, errors.New("BuildTime is required"))
	}
	if buildCommit == "" {
		errs = append(errs, errors.New("BuildCommit is required"))
	}
	if buildVersion == "" {
		errs = append(errs, errors.New("BuildVersion is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	buildInfo.Name = buildName
	buildInfo.Time = buildTime
	buildInfo.Commit = buildCommit
	buildInfo.Version = buildVersion
	return nil
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() *Info {
	return buildInfo
}
