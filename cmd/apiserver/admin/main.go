package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand(openFromConfig).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "错误:", err)
		os.Exit(1)
	}
}
