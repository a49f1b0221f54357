package main

import (
	"os"

	"github.com/datagate-io/datagate/cmd/datagate/cmd"
	"github.com/datagate-io/datagate/internal/common/logtrace"
)

func init() {
	logtrace.InitLogger()
}

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
