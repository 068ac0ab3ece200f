package main

import "github.com/tanq16/oglauncher/cmd"

func main() {
	cmd.Execute()
}
