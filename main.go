package main

import "github.com/inovacc/binderlaunch/cmd"

func main() {
	cmd.Execute()
}
