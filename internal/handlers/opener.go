package handlers

import (
	"fmt"
	"os/exec"
	"runtime"
)

// BrowserOpener hands URLs to the desktop's default browser.
type BrowserOpener struct{}

func (BrowserOpener) Open(url string) error {
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
		return fmt.Errorf("open %s: %w", url, err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// OpenerFunc adapts a function to URLOpener.
type OpenerFunc func(url string) error

func (f OpenerFunc) Open(url string) error { return f(url) }
