package main

import "github.com/kozaktomas/frame-redactor/cmd"

func main() {
	cmd.Execute()
}
