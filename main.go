package main

import (
	"context"
	"log"
	"os"

	"area/cmd"
)

// make version a variable so the build system can inject it
var version = "unknown"

func main() {
	runCmd := cmd.ServerCli()
	if err := runCmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
