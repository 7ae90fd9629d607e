// Copyright 2023-present The Strata Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package main

import (
	"os"

	"github.com/strata-db/strata/cmd/stratacmd"

	_ "github.com/strata-db/strata/sql/mysql"
	_ "github.com/strata-db/strata/sql/postgres"
	_ "github.com/strata-db/strata/sql/sqlite"
)

func main() {
	if err := stratacmd.Root.Execute(); err != nil {
		os.Exit(1)
	}
}
