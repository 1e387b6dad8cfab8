package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNotificationKind(t *testing.T) {
	k, ok := ParseNotificationKind("permission_prompt")
	assert.True(t, ok)
	assert.Equal(t, KindPermissionPrompt, k)
	assert.Equal(t, StatusBlocked, k.ResultingStatus())

	k, ok = ParseNotificationKind("auth_success")
	assert.False(t, ok)
	assert.Equal(t, KindIdlePrompt, k)
	assert.Equal(t, StatusIdle, k.ResultingStatus())

	assert.Equal(t, StatusIdle, NotificationKind("unmapped").ResultingStatus())
}

func TestStatusSeverity(t *testing.T) {
	assert.Less(t, StatusWorking.Severity(), StatusIdle.Severity())
	assert.Less(t, StatusIdle.Severity(), StatusBlocked.Severity())
}

func TestParseStatus(t *testing.T) {
	for _, s := range []string{"working", "idle", "blocked"} {
		st, err := ParseStatus(s)
		require.NoError(t, err)
		assert.Equal(t, Status(s), st)
	}
	_, err := ParseStatus("Working")
	assert.Error(t, err)
}
