package main

import "github.com/molpadia/molpareplay/cmd/uploader/cmd"

func main() {
	cmd.Execute()
}
