// Package pipeline builds and runs the external commands of a MAGeTbrain
// run: the BIDS validator and the mb.sh driver for the init, template,
// subject and group stages.
//
// Commands are plain values. A Runner decides what to do with them:
// ExecRunner executes them and streams their combined output line by line,
// DryRunner only prints them.
package pipeline
