/*
Package log provides structured logging for the Sastre engine using zerolog.

Init configures the global logger once at startup (console output for
interactive runs, JSON for automation). Packages derive child loggers with
WithComponent or WithTask so every line carries enough context to be
attributed without grepping.
*/
package log
