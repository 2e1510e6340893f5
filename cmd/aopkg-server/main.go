// Package main is the entry point for the aopkg registry server.
package main

import (
	"os"

	"github.com/aopkg/aopkg-server/cmd/aopkg-server/app"
)

func main() {
	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
