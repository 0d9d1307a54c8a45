package main

import (
	"fmt"
	"os"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "hubctl: %v\n", err)
		os.Exit(1)
	}
}
