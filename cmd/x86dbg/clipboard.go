package main

import (
	"fmt"
	"sync"

	"golang.design/x/clipboard"
)

// clipboardOnce/clipboardOK mirror the teacher's lazy-init pattern in
// video_backend_ebiten.go's handleClipboardPaste: clipboard.Init() is only
// attempted once, and every caller after that just checks clipboardOK.
var (
	clipboardOnce sync.Once
	clipboardOK   bool
)

// copyToClipboard implements the monitor's copy command, writing a
// formatted register dump (or any other text the caller builds) to the
// host's system clipboard.
func copyToClipboard(text string) {
	clipboardOnce.Do(func() {
		clipboardOK = clipboard.Init() == nil
	})
	if !clipboardOK {
		fmt.Println("x86dbg: clipboard unavailable on this platform")
		return
	}
	clipboard.Write(clipboard.FmtText, []byte(text))
}
