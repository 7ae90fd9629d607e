// Copyright 2023-present The Strata Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package stratacmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/strata-db/strata/sql/migrate"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

var (
	cyan    = color.CyanString
	green   = color.GreenString
	red     = color.RedString
	yellow  = color.YellowString
	dash    = yellow("--")
	arr     = cyan("->")
	indent2 = strings.Repeat(" ", 2)
)

// LogTTY renders plan execution for terminals.
type LogTTY struct {
	out io.Writer
}

// Log implements the migrate.Logger interface.
func (l *LogTTY) Log(e migrate.LogEntry) {
	switch e := e.(type) {
	case migrate.LogPlan:
		if len(e.Plan) == 0 {
			fmt.Fprintf(l.out, "%s nothing to do\n", dash)
			return
		}
		fmt.Fprintf(l.out, "%s plan (%d steps):\n", dash, len(e.Plan))
		for _, s := range e.Plan {
			fmt.Fprintf(l.out, "%s%s %s %s\n", indent2, arr, direction(s.Direction), s.Migration.Name)
		}
	case migrate.LogStep:
		fmt.Fprintf(l.out, "%s %s %s\n", arr, direction(e.Step.Direction), e.Step.Migration.Name)
	case migrate.LogDone:
		fmt.Fprintf(l.out, "%s done\n", dash)
	case migrate.LogError:
		fmt.Fprintf(l.out, "%s %s\n", red("error:"), e.Error)
	default:
		fmt.Fprintf(l.out, "%v", e)
	}
}

func direction(d migrate.Direction) string {
	if d == migrate.Down {
		return yellow("%-4s", d)
	}
	return green("%-4s", d)
}

// reportStatus renders the match list as a table, one row per migration.
func reportStatus(out io.Writer, matches []migrate.Match) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Migration", "State"})
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, m := range matches {
		table.Append([]string{m.Name(), state(m.Kind)})
	}
	table.Render()
}

func state(k migrate.MatchKind) string {
	switch k {
	case migrate.MatchApplied:
		return green("%s", k)
	case migrate.MatchPending:
		return cyan("%s", k)
	default:
		return red("%s", k)
	}
}
