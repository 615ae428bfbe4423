package main

import "github.com/tejiriaustin/fimtracker/cmd"

func main() {
	cmd.Execute()
}
