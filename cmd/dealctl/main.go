package main

import (
	"fmt"
	"os"

	"github.com/ajharbinger/dealflow-engine/internal/cli"
	"github.com/joho/godotenv"
)

func main() {
	// A missing .env is fine for the CLI
	_ = godotenv.Load()

	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
