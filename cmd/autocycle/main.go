package main

import "github.com/vietddude/autocycle/internal/cli"

func main() {
	cli.Execute()
}
