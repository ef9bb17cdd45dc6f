package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output.
var printlnFn = fmt.Println

// execIface is what the REPL dispatches a tokenized line to.
type execIface interface {
	Execute(ctx context.Context, args []string) error
}

const replHelp = "Available commands: can-read <scroll>, record <scroll> [--at RFC3339], report <scroll>, " +
	"stats, attest <scroll>, verify-token <token>, backup list, backup show <seq>, reset, exit"

// runREPL reads lines from scanner and runs each through a.
//
// "help" lists the commands and "exit" or "quit" leaves the loop, as does
// EOF or a cancelled context. Command errors are printed and the loop
// continues.
func runREPL(ctx context.Context, a execIface, scanner *bufio.Scanner) {
	for {
		if ctx.Err() != nil {
			return
		}
		printlnFn("sk> ")
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}

		switch parts[0] {
		case "help", "?":
			printlnFn(replHelp)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		case "repl":
			printlnFn("Already in interactive mode")

		default:
			if err := a.Execute(ctx, parts); err != nil {
				printlnFn("Error:", err)
			}
		}
	}
}
