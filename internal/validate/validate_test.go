package validate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsConversationAcceptsRealPayload(t *testing.T) {
	candidate := map[string]interface{}{
		"entries": map[string]interface{}{
			"s1": map[string]interface{}{
				"messages": []interface{}{
					map[string]interface{}{"role": "user", "content": "hello there"},
				},
			},
		},
	}
	require.True(t, IsConversation(candidate))
}

func TestIsConversationRejectsNoiseKeys(t *testing.T) {
	candidate := map[string]interface{}{
		"workbench.panel.view":  "collapsed",
		"storage.settings":      "{}",
		"keybinding.editor":     "ctrl+s",
	}
	require.False(t, IsConversation(candidate))
}

func TestIsConversationRejectsTooFewStrongIndicators(t *testing.T) {
	candidate := map[string]interface{}{"theme": "dark"}
	require.False(t, IsConversation(candidate))
}

func TestIsConversationRejectsNonDictList(t *testing.T) {
	require.False(t, IsConversation("just a string"))
	require.False(t, IsConversation(42))
}

func TestIsConversationAcceptsListOfMessages(t *testing.T) {
	candidate := []interface{}{
		map[string]interface{}{"role": "assistant", "text": "response text here"},
		map[string]interface{}{"role": "user", "text": "prompt text here"},
	}
	require.True(t, IsConversation(candidate))
}
