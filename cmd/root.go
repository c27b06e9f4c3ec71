// Package cmd wires the garcom CLI: serve runs the webhook server, chat
// runs a local REPL against the engine, version prints build info.
package cmd

import (
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/garcomlabs/garcom/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "garcom",
	Short: "Garçom - conversational ordering over WhatsApp",
	Long: `Garçom turns a restaurant's WhatsApp number into an ordering agent.
Inbound messages are debounced into turns, each turn is answered by an
LLM restricted to a per-intent tool allow-list, and every cart change
flows through the tool registry.

Run "garcom serve" to start the webhook server, or "garcom chat" for a
local conversation without WhatsApp.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// newLogger builds the process logger. GARCOM_LOG_JSON switches to JSON
// output for container deployments.
func newLogger() log.Logger {
	return log.New(log.Config{JSON: os.Getenv("GARCOM_LOG_JSON") != ""})
}

// parseRateBurst reads GARCOM_RATE_BURST from the environment.
// Returns 0 (use default) if unset or invalid.
func parseRateBurst() int {
	v := os.Getenv("GARCOM_RATE_BURST")
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
