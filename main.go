package main

import "github.com/certpilot/certpilot/cmd"

func main() {
	cmd.Execute()
}
