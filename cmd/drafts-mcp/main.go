// Command drafts-mcp serves the Drafts app to MCP clients over stdio or
// HTTP.
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "drafts-mcp:", err)
		os.Exit(1)
	}
}
