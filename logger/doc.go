// Package logger provides structured logging for pipegraph using zerolog.
//
// It supports JSON and console output, level configuration, and
// component-scoped loggers carrying run, job and instance fields.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "console"
//
// # Usage
//
//	log := logger.Get("scheduler")
//	log.Info("instance finished", logger.Fields(logger.FieldInstance, id))
package logger
