// Package logging provides a per-module slog registry for fbdaemon.
//
// Each component (peripheral, dmapool, arena, rotate, spi, frameloop, ...)
// gets its own *slog.Logger via GetLogger, and its own runtime-adjustable
// level via the module's entry in Config.Modules. Call Initialize once at
// startup with the resolved Options before any component logs; loggers
// created beforehand (package-level vars, tests) pick up Initialize's level
// the next time Initialize runs.
//
// Every record also lands in a bounded ring buffer (GetBuffer) alongside
// the stdout text/json handler, so the most recent log history survives
// independent of whether anything is watching stdout at the time.
package logging
