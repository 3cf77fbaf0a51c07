package collab

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractMentions(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected []string
	}{
		{"none", "no mentions here", []string{}},
		{"single", "@alice please review", []string{"alice"}},
		{"multiple in order", "cc @bob and @alice.smith", []string{"bob", "alice.smith"}},
		{"duplicates collapse", "@bob @bob @Bob", []string{"bob", "Bob"}},
		{"trailing punctuation", "thanks @carol.", []string{"carol"}},
		{"email ignored", "send to dan@example.com", []string{}},
		{"bare at sign", "meet @ noon", []string{}},
		{"parenthesised", "(@erin) signed off", []string{"erin"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractMentions(tt.content))
		})
	}
}
