package command

import (
	"io"
	"log"
)

var (
	opsLogger  *log.Logger
	diagLogger *log.Logger
)

// SetLogWriters configures the ops and diag streams. Nil disables a stream.
func SetLogWriters(ops, diag io.Writer) {
	opsLogger, diagLogger = nil, nil
	if ops != nil {
		opsLogger = log.New(ops, "[command] ", log.LstdFlags)
	}
	if diag != nil {
		diagLogger = log.New(diag, "[command] ", log.LstdFlags)
	}
}

func opsf(format string, args ...interface{}) {
	if opsLogger != nil {
		opsLogger.Printf(format, args...)
	}
}

func diagf(format string, args ...interface{}) {
	if diagLogger != nil {
		diagLogger.Printf(format, args...)
	}
}
