package main

import (
	"fmt"
	"os"

	"github.com/docent-ai/docent/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "docent:", err)
		os.Exit(1)
	}
}
