package main

import "github.com/soralab/gh-productivity/cmd"

func main() {
	cmd.Execute()
}
