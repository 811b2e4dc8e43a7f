package main

import "github.com/Tiliavir/research-hours/cmd"

func main() {
	cmd.Execute()
}
