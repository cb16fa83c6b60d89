package main

import (
	"fmt"
	"os"

	"github.com/soyeahso/flowbridge/internal/cli"
	"github.com/tillberg/autorestart"
)

func main() {
	// Development only: re-exec when the binary changes.
	if os.Getenv("FLOWBRIDGE_AUTORESTART") != "" {
		go autorestart.RestartOnChange()
	}

	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
