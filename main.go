package main

import "github.com/kagedl/resumedl/cmd"

func main() {
	cmd.Execute()
}
