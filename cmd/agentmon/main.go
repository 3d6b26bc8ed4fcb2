// agentmon CLI entry point
//
// agentmon tracks the cost, latency and reliability of AI agent executions and
// raises alerts when budgets or thresholds are crossed.
package main

import "github.com/jbctechsolutions/agentmon/internal/presentation/cli/commands"

func main() {
	commands.Execute()
}
