package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"winecellar/internal/services"
)

// Exit codes by error class. Anything unclassified exits 1.
var exitCodes = map[string]int{
	"validation":        2,
	"configuration":     3,
	"connectivity":      4,
	"retries_exhausted": 5,
	"storage":           6,
	"persistence":       7,
}

func main() {
	err := newRootCommand().Execute()
	if err == nil {
		return
	}
	if !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "winecellar:", err)
	}
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	if code, ok := exitCodes[services.Classify(err)]; ok {
		return code
	}
	return 1
}
