package mailbox

import "github.com/emersion/go-imap"

// Flag is one of the six message flags tracked on a content item.
type Flag string

const (
	FlagAnswered Flag = imap.AnsweredFlag
	FlagDeleted  Flag = imap.DeletedFlag
	FlagDraft    Flag = imap.DraftFlag
	FlagSeen     Flag = imap.SeenFlag
	FlagRecent   Flag = imap.RecentFlag
	FlagFlagged  Flag = imap.FlaggedFlag
)

// AllFlags lists every flag tracked internally, Recent included.
var AllFlags = []Flag{FlagAnswered, FlagDeleted, FlagDraft, FlagSeen, FlagRecent, FlagFlagged}

// PermanentFlags lists the flags advertised to clients as settable.
// Recent is tracked internally but never advertised.
var PermanentFlags = []Flag{FlagAnswered, FlagDeleted, FlagDraft, FlagSeen, FlagFlagged}

// FlagSet is the six-flag boolean vector attached to a message.
// The zero value means "no flag set".
type FlagSet struct {
	Answered bool
	Deleted  bool
	Draft    bool
	Seen     bool
	Recent   bool
	Flagged  bool
}

func (f FlagSet) Contains(flag Flag) bool {
	switch flag {
	case FlagAnswered:
		return f.Answered
	case FlagDeleted:
		return f.Deleted
	case FlagDraft:
		return f.Draft
	case FlagSeen:
		return f.Seen
	case FlagRecent:
		return f.Recent
	case FlagFlagged:
		return f.Flagged
	}
	return false
}

func (f *FlagSet) Set(flag Flag, value bool) {
	switch flag {
	case FlagAnswered:
		f.Answered = value
	case FlagDeleted:
		f.Deleted = value
	case FlagDraft:
		f.Draft = value
	case FlagSeen:
		f.Seen = value
	case FlagRecent:
		f.Recent = value
	case FlagFlagged:
		f.Flagged = value
	}
}

func (f FlagSet) IsEmpty() bool {
	return f == FlagSet{}
}

// Strings returns the protocol representation of the set flags.
func (f FlagSet) Strings() []string {
	output := make([]string, 0, len(AllFlags))
	for _, flag := range AllFlags {
		if f.Contains(flag) {
			output = append(output, string(flag))
		}
	}
	return output
}

// FlagSetFromStrings parses protocol flag strings, ignoring unknown ones.
func FlagSetFromStrings(source []string) FlagSet {
	var output FlagSet
	for _, s := range source {
		output.Set(Flag(s), true)
	}
	return output
}

// WithoutRecent returns a copy of the set with Recent cleared.
func (f FlagSet) WithoutRecent() FlagSet {
	f.Recent = false
	return f
}

// StripRecent returns a copy of the protocol flag list without the Recent
// flag, which clients are not allowed to set themselves.
func StripRecent(source []string) []string {
	output := make([]string, 0, len(source))
	for _, flag := range source {
		if flag == imap.RecentFlag {
			continue
		}
		output = append(output, flag)
	}
	return output
}
