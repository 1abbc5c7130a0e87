// ABOUTME: Zap logger bootstrap
// ABOUTME: Development encoder when debug is set, production JSON otherwise
package logging

import (
	"go.uber.org/zap"
)

// Setup builds the process logger and installs it as the zap global. Returns
// the sync function to defer in main.
func Setup(debug bool) (func(), error) {
	var logger *zap.Logger
	var err error
	if debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return func() { _ = logger.Sync() }, nil
}
