package cmd

import (
	"os"
	"runtime"
)

// ANSI escapes used in command output. They are blanked when colors are off.
var (
	colorRed    = "\033[0;31m"
	colorGreen  = "\033[0;32m"
	colorYellow = "\033[0;33m"
	colorCyan   = "\033[0;36m"
	colorDim    = "\033[2m"
	colorBold   = "\033[1m"
	colorReset  = "\033[0m"
)

func init() {
	if !colorsEnabled(os.Getenv, stdoutIsTerminal()) {
		disableColors()
	}
}

func disableColors() {
	for _, c := range []*string{&colorRed, &colorGreen, &colorYellow, &colorCyan, &colorDim, &colorBold, &colorReset} {
		*c = ""
	}
}

// colorsEnabled honors NO_COLOR (https://no-color.org/) and TERM=dumb, and
// only colors terminal output.
func colorsEnabled(getenv func(string) string, terminal bool) bool {
	if getenv("NO_COLOR") != "" || getenv("TERM") == "dumb" || !terminal {
		return false
	}
	if runtime.GOOS != "windows" {
		return true
	}
	// Legacy Windows consoles print escapes literally.
	return getenv("WT_SESSION") != "" || getenv("TERM_PROGRAM") != "" ||
		getenv("ANSICON") != "" || getenv("ConEmuANSI") == "ON"
}
