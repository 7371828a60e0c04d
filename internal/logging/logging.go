// Package logging is a thin wrapper around the standard library log
// package, giving the rest of the module leveled call sites without
// pulling in a structured logging library — none of the source this
// project is built on imports one directly.
package logging

import "log"

func Warnf(format string, args ...any) {
	log.Printf("WARN "+format, args...)
}

func Errorf(format string, args ...any) {
	log.Printf("ERROR "+format, args...)
}

func Infof(format string, args ...any) {
	log.Printf("INFO "+format, args...)
}
