package main

import (
	"tunevault/internal/client/cli"
)

// ServerAddr is set via ldflags during build. e.g. -X main.ServerAddr=example.com:8080
var ServerAddr = "localhost:8080"

func main() {
	cli.Init(ServerAddr)
	cli.Execute()
}
