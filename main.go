package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/vitrinehq/vitrine/cmd"
)

func main() {
	// Local .env files carry dev credentials; absence is the normal case.
	_ = godotenv.Load()

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
