package main

import "github.com/jasl/photo-index/cmd"

func main() {
	cmd.Execute()
}
