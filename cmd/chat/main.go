package main

import "ai-docchat-be/internal/cli"

func main() {
	cli.Execute()
}
