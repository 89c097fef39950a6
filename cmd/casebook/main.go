// Package main provides the casebook CLI.
package main

import "github.com/mesh-intelligence/casebook/internal/cli"

func main() {
	cli.Execute()
}
