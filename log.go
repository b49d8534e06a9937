// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package d3dbridge

import (
	"io"
	"log"
	"os"
)

// Logger writes diagnostics. It must never share a stream with protocol
// traffic: the worker's stdout carries messages, so the default is stderr.
type Logger struct {
	l       *log.Logger
	verbose bool
}

// NewLogger returns a Logger writing to w. Debug lines are dropped unless
// verbose is set.
func NewLogger(w io.Writer, verbose bool) *Logger {
	return &Logger{
		l:       log.New(w, "[d3dbridge] ", log.LstdFlags|log.Lmicroseconds),
		verbose: verbose,
	}
}

func defaultLogger() *Logger {
	return NewLogger(os.Stderr, false)
}

// Printf logs unconditionally.
func (l *Logger) Printf(format string, args ...interface{}) {
	l.l.Printf(format, args...)
}

// Debugf logs only in verbose mode.
func (l *Logger) Debugf(format string, args ...interface{}) {
	if l.verbose {
		l.l.Printf(format, args...)
	}
}
