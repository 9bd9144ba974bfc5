package main

import "github.com/foxvalleyai/website/cmd/foxvalley/cmd"

func main() {
	cmd.Execute()
}
