package main

import "eavsctl/cmd"

func main() {
	cmd.Execute()
}
