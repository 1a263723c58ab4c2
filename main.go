package main

import "github.com/samsaffron/tutor/cmd"

func main() {
	cmd.Execute()
}
