package main

import "github.com/nextlevelbuilder/nanobot/cmd"

func main() {
	cmd.Execute()
}
