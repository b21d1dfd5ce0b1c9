package main

import "github.com/khanhnv2901/headerscope/cmd"

var execCmd = cmd.Execute

func main() {
	execCmd()
}
