package main

import (
	"github.com/turtacn/certguard/cmd/cli"
)

// main is the entry point for the certadmin command-line tool.
// main 是 certadmin 命令行工具的入口点。
func main() {
	cli.Execute()
}
