package main

import "inu/internal/cli"

func main() {
	cli.Execute()
}
