package main

import (
	"os"

	"healthcheck_srv/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
