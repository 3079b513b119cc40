package main

import "github.com/depsentry/depsentry/cmd"

func main() {
	cmd.Execute()
}
