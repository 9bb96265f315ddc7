// Package logs reads session events for the CLI.
//
// StreamClient pages through the preview API's /api/logs endpoint, blocking
// in follow mode until new events arrive. LastLines reads the tail of the
// session log file directly, for when no session is running to ask.
package logs
