package main

import (
	"os"

	"github.com/matteovidali/Keysight-Scope-Tools/cmd/scopectl/app"
)

func main() {
	if err := app.NewScopectlCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
