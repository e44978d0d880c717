// Package logs reads the daemon log for the `winecellar logs` command.
//
// Last returns the trailing lines of a log file plus the offset to resume
// from; Follow polls from an offset and hands each new line to a callback
// until the context ends. Files that do not exist yet are treated as empty.
package logs
