// Package export writes interaction records as CSV or JSON for download
// from the analytics API and the CLI.
package export
