package main

import "github.com/Norgate-AV/pharpack/cmd"

func main() {
	cmd.Execute()
}
