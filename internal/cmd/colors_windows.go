//go:build windows

package cmd

// stdoutIsTerminal assumes a console on Windows; shouldDisableColors decides
// from the environment instead.
func stdoutIsTerminal() bool {
	return true
}
