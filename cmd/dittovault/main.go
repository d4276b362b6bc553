package main

import "github.com/marmos91/dittovault/cmd/dittovault/cmd"

func main() {
	cmd.Execute()
}
