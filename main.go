package main

import "github.com/naka-gawa/contrib-stats/cmd"

func main() {
	cmd.Execute()
}
