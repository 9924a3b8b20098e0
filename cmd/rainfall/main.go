package main

import "track-rainfall/internal/cli"

func main() {
	cli.Execute()
}
