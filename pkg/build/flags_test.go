// SPDX-License-Identifier: MIT
package build

import (
	"os"
	"strings"
	"testing"
)

var (
	origName    string
	origTime    string
	origCommit  string
	origVersion string
	origInfo    Info
)

func TestMain(m *testing.M) {
	origName = buildName
	origTime = buildTime
	origCommit = buildCommit
	origVersion = buildVersion
	origInfo = *buildInfo

	exitCode := m.Run()

	buildName = origName
	buildTime = origTime
	buildCommit = origCommit
	buildVersion = origVersion
	*buildInfo = origInfo

	os.Exit(exitCode)
}

func TestInitialize(t *testing.T) {
	tests := []struct {
		name        string
		buildName   string
		buildTime   string
		buildCommit string
		buildVer    string
		wantErrMsg  []string
	}{
		{"Missing BuildName", "", "2025-04-13", "abcdef123", "v1.0.0", []string{"BuildName is required"}},
		{"Missing BuildTime", "doppler", "", "abcdef123", "v1.0.0", []string{"BuildTime is required"}},
		{"Missing BuildCommit", "doppler", "2025-04-13", "", "v1.0.0", []string{"BuildCommit is required"}},
		{"Missing BuildVersion", "doppler", "2025-04-13", "abcdef123", "", []string{"BuildVersion is required"}},
		{"Missing everything", "", "", "", "", []string{"BuildName", "BuildTime", "BuildCommit", "BuildVersion"}},
		{"Success Case", "doppler", "2025-04-13", "abcdef123", "v1.0.0", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buildInfo = defaultInfo()
			buildName = tt.buildName
			buildTime = tt.buildTime
			buildCommit = tt.buildCommit
			buildVersion = tt.buildVer

			err := Initialize()

			if len(tt.wantErrMsg) > 0 {
				if err == nil {
					t.Fatal("Initialize() expected error, got nil")
				}
				for _, msg := range tt.wantErrMsg {
					if !strings.Contains(err.Error(), msg) {
						t.Errorf("Initialize() error = %v, want it to mention %q", err, msg)
					}
				}
				if buildInfo.Version != "dev" {
					t.Errorf("failed Initialize changed Version to %q", buildInfo.Version)
				}
				return
			}

			if err != nil {
				t.Fatalf("Initialize() unexpected error: %v", err)
			}
			want := Info{
				Name:        tt.buildName,
				Description: description,
				Time:        tt.buildTime,
				Commit:      tt.buildCommit,
				Version:     tt.buildVer,
			}
			if *buildInfo != want {
				t.Errorf("buildInfo = %+v, want %+v", *buildInfo, want)
			}
		})
	}
}

func TestGetBuildFlagsDefaults(t *testing.T) {
	buildInfo = defaultInfo()
	info := GetBuildFlags()
	if info.Name != "doppler" || info.Version != "dev" || info.Description == "" {
		t.Errorf("GetBuildFlags() = %+v, want development defaults", info)
	}
	if got, want := info.String(), "doppler dev (commit unknown, built unknown)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
