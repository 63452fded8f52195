package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUser(t *testing.T) {
	tests := []struct {
		name     string
		id       string
		username string
		wantErr  error
	}{
		{name: "explicit id", id: "u-1", username: "alice"},
		{name: "generated id", username: "bob"},
		{name: "empty name", id: "u-2", wantErr: ErrUsernameEmpty},
		{name: "long name", username: strings.Repeat("x", MaxUsernameLen+1), wantErr: ErrUsernameTooLong},
		{name: "long id", id: strings.Repeat("i", MaxUserIDLen+1), username: "carol", wantErr: ErrUserIDTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := NewUser(tt.id, tt.username)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.username, u.Name)
			if tt.id != "" {
				assert.Equal(t, UserID(tt.id), u.ID)
			} else {
				assert.Len(t, string(u.ID), 36)
			}
		})
	}
}

func TestSetName(t *testing.T) {
	u, err := NewUser("u-1", "alice")
	require.NoError(t, err)

	require.ErrorIs(t, u.SetName(""), ErrUsernameEmpty)
	require.NoError(t, u.SetName("alicia"))
	assert.Equal(t, "alicia", u.Name)
}
