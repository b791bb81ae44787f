package main

import (
	"os"

	"github.com/umegbewe/ippool/internal/tool"
)

func main() {
	os.Exit(tool.Main(os.Args[1:], os.Stdout, os.Stderr))
}
