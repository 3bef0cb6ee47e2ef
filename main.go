package main

import "github.com/jixoai/openspecui-kernel/cmd"

func main() {
	cmd.Execute()
}
