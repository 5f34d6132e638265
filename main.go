package main

import (
	"os"

	"go.uber.org/zap"

	"github.com/reputation-systems/forum-application/cmd"
)

var (
	log *zap.Logger
)

func main() {

	if err := cmd.Execute(); err != nil {
		log = zap.L()
		log.Error("failed to execute forum", zap.Error(err))
		os.Exit(1)
	}
}
