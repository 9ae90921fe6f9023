package mailbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPathRoot(t *testing.T) {
	testCases := []struct {
		path  Path
		first string
		rest  string
	}{
		{"", "", ""},
		{"INBOX", "INBOX", ""},
		{"Sites/engineering", "Sites", "engineering"},
		{"Sites/engineering/docs", "Sites", "engineering/docs"},
	}
	for _, testCase := range testCases {
		first, rest := testCase.path.Root()
		assert.Equal(t, testCase.first, first)
		assert.Equal(t, testCase.rest, rest)
	}
}

func TestPathJoin(t *testing.T) {
	assert.Equal(t, Path("INBOX"), Path("").Join("INBOX"))
	assert.Equal(t, Path("Sites/engineering"), Path("Sites").Join("engineering"))
}

func TestPathName(t *testing.T) {
	assert.Equal(t, "INBOX", Path("INBOX").Name())
	assert.Equal(t, "docs", Path("Sites/engineering/docs").Name())
}
