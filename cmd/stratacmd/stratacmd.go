// Copyright 2023-present The Strata Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

// Package stratacmd holds the entire Root commands used to build
// a strata distribution.
package stratacmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/mod/semver"
)

var (
	// Root represents the root command when called without any subcommands.
	Root = &cobra.Command{
		Use:          "strata",
		Short:        "A database migration tool.",
		SilenceUsage: true,
	}

	// version is the strata CLI build version.
	// Should be set by build script "-X 'github.com/strata-db/strata/cmd/stratacmd.version=${version}'"
	version string

	// versionCmd represents the subcommand 'strata version'.
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Prints this Strata CLI version information.",
		Run: func(cmd *cobra.Command, args []string) {
			v, u := parse(version)
			Root.Printf("strata version %s\n%s\n", v, u)
		},
	}
)

func init() {
	Root.AddCommand(versionCmd)
}

// parse returns a user facing version and release notes url
func parse(version string) (string, string) {
	u := "https://github.com/strata-db/strata/releases/latest"
	if ok := semver.IsValid(version); !ok {
		return "- development", u
	}
	s := strings.Split(version, "-")
	if len(s) != 0 && s[len(s)-1] != "canary" {
		u = fmt.Sprintf("https://github.com/strata-db/strata/releases/tag/%s", version)
	}
	return version, u
}
