package notifications

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowsExpandRolesAndUsers(t *testing.T) {
	n := New("Fees due today", "3 students have an installment due", "warning", map[string]int{"count": 3}).
		ToRoles("admin", "owner").
		ToUsers(12)

	rows := n.rows()

	require.Len(t, rows, 3)
	assert.Equal(t, "admin", rows[0].Role)
	assert.Nil(t, rows[0].UserID)
	assert.Equal(t, "owner", rows[1].Role)
	require.NotNil(t, rows[2].UserID)
	assert.Equal(t, uint(12), *rows[2].UserID)
	for _, r := range rows {
		assert.Equal(t, "warning", r.Type)
		assert.JSONEq(t, `{"count":3}`, string(r.Data))
	}
}

func TestNormalizeType(t *testing.T) {
	assert.Equal(t, TypeSuccess, New("t", "m", "success", nil).Type)
	assert.Equal(t, TypeInfo, New("t", "m", "urgent", nil).Type)
}

func TestEnqueueRequiresRecipients(t *testing.T) {
	s := &Service{}
	assert.Error(t, s.EnqueueOrCreate(New("t", "m", TypeInfo, nil)))
}
