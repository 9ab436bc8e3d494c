package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/vitwit/usdcflow/cmd/usdcflow/commands"
)

func main() {
	// .env is optional for the CLI; USDCFLOW_* may come from the shell
	_ = godotenv.Load()

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
