package mailbox

import "fmt"

// ViewMode governs which child items a folder presents as messages.
type ViewMode string

const (
	// ViewModeArchive only shows genuine messages (items carrying the
	// message capability marker).
	ViewModeArchive ViewMode = "archive"
	// ViewModeMixed shows everything.
	ViewModeMixed ViewMode = "mixed"
	// ViewModeVirtual only shows non-message content, synthesized into a
	// message view.
	ViewModeVirtual ViewMode = "virtual"
)

func (m ViewMode) Valid() bool {
	switch m {
	case ViewModeArchive, ViewModeMixed, ViewModeVirtual:
		return true
	}
	return false
}

func (m *ViewMode) UnmarshalYAML(unmarshal func(any) error) error {
	var value string
	if err := unmarshal(&value); err != nil {
		return err
	}
	mode := ViewMode(value)
	if !mode.Valid() {
		return fmt.Errorf("invalid view mode %q", value)
	}
	*m = mode
	return nil
}
