// Command taskit is a task tracker whose collection lives in a
// version-controlled directory of TOML files, one file per task.
package main

import (
	"fmt"
	"os"

	_ "github.com/mbarlow/taskit/internal/vcs/git" // register the git backend
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
