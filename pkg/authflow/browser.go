package authflow

import (
	"fmt"
	"os/exec"
	"runtime"
)

// Opener launches the user's browser at a URL. Tests substitute a stub.
type Opener interface {
	Open(url string) error
}

// SystemBrowser opens URLs with the platform's default handler.
type SystemBrowser struct{}

// Open launches the default browser.
func (SystemBrowser) Open(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return nil
}
