package main

import "github.com/qobs-build/skiabuild/cmd"

func main() {
	cmd.Execute()
}
