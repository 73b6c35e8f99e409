package main

import (
	"context"

	"lonetwatch/cmd/lonetwatch/commands"
)

func main() {
	commands.ExecuteContext(context.Background())
}
