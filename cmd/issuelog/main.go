package main

import "github.com/spec-kit/issuelog/internal/cli"

func main() {
	cli.Execute()
}
