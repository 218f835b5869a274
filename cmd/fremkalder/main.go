package main

import "github.com/bryanchriswhite/fremkalder/cmd/fremkalder/commands"

func main() {
	commands.Execute()
}
