package main

import "github.com/matthannam-fart/office-hours/internal/cli"

func main() {
	cli.Execute()
}
