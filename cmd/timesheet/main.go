// Package main は timesheet CLI のエントリポイントです。
package main

import (
	"os"

	"github.com/ogurasousui/timesheet-sync/cmd/timesheet/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
