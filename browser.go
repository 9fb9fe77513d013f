package main

import (
	"fmt"
	"os/exec"
	"runtime"
)

// openBrowser launches the default browser at url. The caller falls back to
// printing the URL when this fails, so errors here are non-fatal.
func openBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "linux":
		return exec.Command("xdg-open", url).Start()
	default:
		return fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}
}
