package browser

import (
	"fmt"
	"os/exec"
	"runtime"
)

// launchers lists the commands tried per platform, in order
var launchers = map[string][][]string{
	"darwin":  {{"open"}},
	"linux":   {{"xdg-open"}, {"x-www-browser"}, {"www-browser"}},
	"windows": {{"rundll32", "url.dll,FileProtocolHandler"}},
}

var start = func(name string, args ...string) error {
	return exec.Command(name, args...).Start()
}

// Open opens a URL in the default browser for the current platform
func Open(url string) error {
	return open(runtime.GOOS, url)
}

func open(goos, url string) error {
	candidates, ok := launchers[goos]
	if !ok {
		return fmt.Errorf("unsupported platform: %s", goos)
	}

	var lastErr error
	for _, c := range candidates {
		args := append(append([]string{}, c[1:]...), url)
		if lastErr = start(c[0], args...); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("could not open a browser, visit %s manually: %w", url, lastErr)
}
