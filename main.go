package main

import "github.com/wxxsfxyzm/installerx/cmd"

func main() {
	cmd.Execute()
}
