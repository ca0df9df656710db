// Package cli parses the BIDS App command line, validates user input and
// handles process-level concerns like exit codes and the version banner. It
// translates the arguments into the application's internal configuration.
package cli
