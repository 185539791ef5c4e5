// Package main is the entry point for the smashmetrics CLI tool, which
// fetches start.gg tournament results and computes player performance
// metrics.
package main

import "github.com/pable/go-smash-metrics/cmd"

func main() {
	cmd.Execute()
}
