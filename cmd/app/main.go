package main

import "AltPull/internal/cli"

func main() {
	cli.Execute()
}
