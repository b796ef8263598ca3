package util

import (
	"github.com/OFFIS-RIT/netunion/pkg/logger"
	"github.com/OFFIS-RIT/netunion/pkg/logger/console"
)

// SetupLogger registers the console logger configured by DEBUG, LOG_FORMAT
// and LOG_FILE. Call logger.Close on exit.
func SetupLogger() error {
	consoleLogger, err := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  GetEnvBool("DEBUG", false),
		Format: GetEnvString("LOG_FORMAT", console.FormatText),
		File:   GetEnv("LOG_FILE"),
	})
	if err != nil {
		return err
	}
	logger.Init(consoleLogger)
	return nil
}
