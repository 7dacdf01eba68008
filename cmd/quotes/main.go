package main

import "quoterag/internal/cli"

func main() {
	cli.Execute()
}
