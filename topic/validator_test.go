package topic

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateTopic(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		wantErr bool
	}{
		{"valid topic", "sensors/1/value", false},
		{"empty topic", "", true},
		{"wildcard plus", "sensors/+/value", true},
		{"wildcard hash", "sensors/#", true},
		{"null byte", "sensors/\x00/value", true},
		{"too long", strings.Repeat("a", 65536), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTopic(tt.topic)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateTopicFilter(t *testing.T) {
	tests := []struct {
		name    string
		filter  string
		wantErr bool
	}{
		{"exact filter", "sensors/1/value", false},
		{"single level wildcard", "sensors/+/value", false},
		{"multi level wildcard", "sensors/#", false},
		{"multi level not last", "sensors/#/value", true},
		{"partial plus", "sensors/a+b/value", true},
		{"partial hash", "sensors/a#", true},
		{"empty filter", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTopicFilter(tt.filter)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSplitTopicLevels(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, splitTopicLevels("a/b/c"))
	assert.Equal(t, []string{}, splitTopicLevels(""))
	assert.Equal(t, []string{"a", "", "c"}, splitTopicLevels("a//c"))
}
