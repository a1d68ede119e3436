package main

import "github.com/HR-AR/Project-Conductor-sub000/internal/cli"

func main() {
	cli.Execute()
}
