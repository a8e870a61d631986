package main

import "github.com/jayramgit94/Zoom/internal/cli"

func main() {
	cli.Execute()
}
