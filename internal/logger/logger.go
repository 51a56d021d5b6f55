// Package logger provides the engine's logging: clean user-facing messages
// on stdout and structured operational logs on stderr, both backed by
// logrus.
package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var (
	// User emits clean messages for users (stdout).
	User *UserLogger
	// Op emits detailed operational logs (stderr) with structured fields.
	Op *logrus.Logger
)

// init ensures loggers are never nil
func init() {
	Setup(false, false, false)
}

// Setup configures both loggers. verbose enables debug-level operational
// logs, jsonLogs switches the operational stream to JSON, quiet suppresses
// user-facing output below the error level.
func Setup(verbose, jsonLogs, quiet bool) {
	op := logrus.New()
	op.SetOutput(os.Stderr)
	if verbose {
		op.SetLevel(logrus.DebugLevel)
	} else {
		op.SetLevel(logrus.InfoLevel)
	}
	if jsonLogs {
		op.SetFormatter(&logrus.JSONFormatter{})
	} else {
		op.SetFormatter(NewCLIFormatter(os.Stderr))
	}
	Op = op

	user := logrus.New()
	user.SetOutput(os.Stdout)
	user.SetLevel(logrus.InfoLevel)
	if quiet {
		user.SetLevel(logrus.ErrorLevel)
	}
	user.SetFormatter(&userFormatter{})
	User = &UserLogger{logger: user}
}

// SetOutput redirects both streams, primarily for tests.
func SetOutput(userOut, opOut io.Writer) {
	User.logger.SetOutput(userOut)
	Op.SetOutput(opOut)
}

// UserLogger prints clean status lines with a bracketed prefix.
type UserLogger struct {
	logger *logrus.Logger
}

func (u *UserLogger) Info(msg string) {
	u.logger.Info(msg)
}

func (u *UserLogger) Infof(format string, args ...interface{}) {
	u.logger.Infof(format, args...)
}

func (u *UserLogger) Warnf(format string, args ...interface{}) {
	u.logger.Warnf("[WARNING] "+format, args...)
}

func (u *UserLogger) Error(msg string) {
	u.logger.Error("[FAILED] " + msg)
}

func (u *UserLogger) Errorf(format string, args ...interface{}) {
	u.logger.Errorf("[FAILED] "+format, args...)
}

func (u *UserLogger) Starting(msg string) {
	u.logger.Info("[STARTING] " + msg)
}

func (u *UserLogger) Startingf(format string, args ...interface{}) {
	u.logger.Infof("[STARTING] "+format, args...)
}

func (u *UserLogger) Success(msg string) {
	u.logger.Info("[SUCCESS] " + msg)
}

func (u *UserLogger) Successf(format string, args ...interface{}) {
	u.logger.Infof("[SUCCESS] "+format, args...)
}
