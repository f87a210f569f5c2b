package main

import "sprout-pricing/internal/cli"

func main() {
	cli.Execute()
}
