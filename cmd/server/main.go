package main

import (
	"fmt"
	"os"

	"github.com/OFFIS-RIT/netunion/internal/server"
	"github.com/OFFIS-RIT/netunion/internal/util"
	"github.com/OFFIS-RIT/netunion/pkg/logger"
)

func main() {
	util.LoadEnv()

	if err := util.SetupLogger(); err != nil {
		fmt.Fprintln(os.Stderr, "failed to set up logger:", err)
		os.Exit(1)
	}
	defer logger.Close()

	server.Init()
}
