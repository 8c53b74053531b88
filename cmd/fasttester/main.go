package main

import "github.com/mgpai22/fasttester/internal/cli"

func main() {
	cli.Execute()
}
