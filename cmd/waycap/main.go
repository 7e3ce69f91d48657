package main

import "github.com/bryanchriswhite/waycap/cmd/waycap/commands"

func main() {
	commands.Execute()
}
