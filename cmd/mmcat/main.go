package main

import (
	"fmt"
	"os"

	"github.com/jetsonsystems/mediamanager/pkg/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(0)
}
