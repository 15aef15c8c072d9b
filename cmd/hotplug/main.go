// Package main is the single-binary entrypoint for hotplug: the daemon and
// its command-line client.
package main

import "github.com/tutu-network/hotplug/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
