// Package logging provides file-based logging with rotation for ragcore's
// CLI and vector worker process, configured via ragcore.yaml's log section
// (or ~/.ragcore/logs/ when no file path is configured).
package logging
