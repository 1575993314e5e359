package main

import "github.com/aweris/fedfs/cmd/fedfs/cmd"

func main() {
	cmd.Execute()
}
