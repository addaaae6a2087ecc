// Copyright (c) 2025 PgDock
// Licensed under the MIT License. See LICENSE file in the project root for details.

package main

import "pgdock/core/cmd"

func main() {
	cmd.Execute()
}
