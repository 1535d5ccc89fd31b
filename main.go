package main

import "github.com/nextlevelbuilder/answergrid/cmd"

func main() {
	cmd.Execute()
}
