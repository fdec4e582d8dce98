package main

import "converge/cmd/cli"

func main() {
	cli.Execute()
}
