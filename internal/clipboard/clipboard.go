// Package clipboard reads and writes the system clipboard.
package clipboard

import (
	"errors"
	"fmt"

	"github.com/atotto/clipboard"
)

var (
	clipboardReadAll  = clipboard.ReadAll
	clipboardWriteAll = clipboard.WriteAll
)

// ErrUnsupported is returned when no clipboard utility is available
// (for example xclip/xsel/wl-clipboard on a headless Linux box).
var ErrUnsupported = errors.New("clipboard is not available on this system")

// System is the OS clipboard. Its Text method makes it usable as a
// transform.Selection.
type System struct{}

// Text returns the current clipboard text.
func (System) Text() (string, error) {
	if clipboard.Unsupported {
		return "", ErrUnsupported
	}
	text, err := clipboardReadAll()
	if err != nil {
		return "", fmt.Errorf("read clipboard: %w", err)
	}
	return text, nil
}

// SetText replaces the clipboard content.
func (System) SetText(text string) error {
	if clipboard.Unsupported {
		return ErrUnsupported
	}
	if err := clipboardWriteAll(text); err != nil {
		return fmt.Errorf("write clipboard: %w", err)
	}
	return nil
}

// Static is a fixed in-memory selection, used when text comes from arguments or stdin.
type Static string

// Text returns s.
func (s Static) Text() (string, error) {
	return string(s), nil
}
