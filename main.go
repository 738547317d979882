package main

import "dungeonload/cmd"

func main() {
	cmd.Execute()
}
