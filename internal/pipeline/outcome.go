package pipeline

import "fmt"

// StepOutcome records one pipeline step for reporting.
type StepOutcome struct {
	Step string
	OK   bool
	// Output holds bounded captured process output, populated on failure.
	Output string
}

// Captured output is truncated keeping both ends: the head preserves
// setup context, the tail preserves the actual error.
const (
	outputHeadBytes = 4 * 1024
	outputTailBytes = 4 * 1024
)

// truncateOutput bounds captured process output to head+tail.
func truncateOutput(out string) string {
	if len(out) <= outputHeadBytes+outputTailBytes {
		return out
	}
	omitted := len(out) - outputHeadBytes - outputTailBytes
	return fmt.Sprintf("%s\n... [%d bytes omitted] ...\n%s",
		out[:outputHeadBytes], omitted, out[len(out)-outputTailBytes:])
}
