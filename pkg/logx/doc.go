// Package logx is the daemon's structured logger, a thin layer over zerolog.
//
// Console output is human-readable unless JSON is set; the file sink is
// always JSON. Service.Apply swaps level and sinks without recreating loggers.
package logx
