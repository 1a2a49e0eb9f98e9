package main

import (
	"fmt"
	"os"

	"github.com/DavidPeterHoward/dynamic-compression-studio-sub005/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
