package utils

import (
	"fmt"

	"github.com/pterm/pterm"
)

// PrintStartupMessage prints a boxed startup summary
func PrintStartupMessage(nodeID string, port int, difficulty int) {
	body := pterm.Sprintf("Node ID:    %s\nPort:       %d\nDifficulty: %d\nMode:       %s",
		pterm.LightCyan(nodeID), port, difficulty, fmt.Sprintf("HTTP Server (:%d)", port))
	pterm.DefaultBox.
		WithTitle(pterm.LightGreen("Proof-of-Work Ledger Node")).
		WithTitleTopCenter().
		WithHorizontalPadding(2).
		Println(body)
}
