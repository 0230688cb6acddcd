package main

import "github.com/mward/shadowtrace/internal/cli"

func main() {
	cli.Execute()
}
