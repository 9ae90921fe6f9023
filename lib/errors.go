package lib

import "errors"

var (
	ErrMailboxNotFound     = errors.New("mailbox not found")
	ErrMailboxExists       = errors.New("mailbox already exists")
	ErrMailboxNameRequired = errors.New("mailbox name is mandatory")
	ErrMessageNotFound     = errors.New("no such message")
	ErrAccessDenied        = errors.New("permission denied")
	ErrNodeNotFound        = errors.New("node not found")
	ErrFolderNotSelectable = errors.New("folder is not selectable")
)
