package util

import "go.uber.org/zap"

// MustSucceed stops the process when a startup step fails.
func MustSucceed(logger *zap.Logger, err error) {
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
}
