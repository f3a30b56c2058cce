package main

import "github.com/nutrilog/sessiond/cmd"

func main() {
	cmd.Execute()
}
