// grader drives the grading desk from a terminal.
//
// Usage:
//
//	grader grade <file>... [--json]
//	grader status
//	grader rubric show|export|import|save
//	grader settings show|set
//	grader cache clear --yes
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
