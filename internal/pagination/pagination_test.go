package pagination

import (
	"testing"
	"time"

	"github.com/skillpath/backend/libs/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursor_RoundTrip(t *testing.T) {
	c := Cursor{CreatedAt: time.Date(2025, 3, 4, 5, 6, 7, 891000, time.UTC), ID: 42}

	decoded, err := Decode(c.Encode())

	require.NoError(t, err)
	require.NotNil(t, decoded)
	assert.True(t, c.CreatedAt.Equal(decoded.CreatedAt))
	assert.Equal(t, 42, decoded.ID)
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name          string
		token         string
		expectNil     bool
		expectedError bool
	}{
		{name: "empty token is first page", token: "", expectNil: true},
		{name: "legacy zero offset is first page", token: "0", expectNil: true},
		{name: "not base64", token: "!!!", expectedError: true},
		{name: "missing separator", token: "MTIz", expectedError: true},
		{name: "bad id", token: Cursor{CreatedAt: time.Now(), ID: 0}.Encode(), expectedError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Decode(tt.token)
			if tt.expectedError {
				require.Error(t, err)
				assert.Equal(t, apperr.ValidationFailed, apperr.KindOf(err))
				return
			}
			require.NoError(t, err)
			if tt.expectNil {
				assert.Nil(t, c)
			}
		})
	}
}

func TestLimit(t *testing.T) {
	tests := []struct {
		requested     int
		expected      int
		expectedError bool
	}{
		{requested: 0, expected: DefaultLimit},
		{requested: 1, expected: 1},
		{requested: MaxLimit, expected: MaxLimit},
		{requested: MaxLimit + 1, expectedError: true},
		{requested: -1, expectedError: true},
	}

	for _, tt := range tests {
		l, err := Limit(tt.requested)
		if tt.expectedError {
			assert.Error(t, err)
			continue
		}
		assert.NoError(t, err)
		assert.Equal(t, tt.expected, l)
	}
}

func TestNext(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	key := func(id int) Cursor { return Cursor{CreatedAt: base.Add(time.Duration(id) * time.Second), ID: id} }

	t.Run("last page", func(t *testing.T) {
		rows, next := Next([]int{1, 2}, 2, key)
		assert.Equal(t, []int{1, 2}, rows)
		assert.Nil(t, next)
	})

	t.Run("more pages", func(t *testing.T) {
		rows, next := Next([]int{1, 2, 3}, 2, key)
		assert.Equal(t, []int{1, 2}, rows)
		require.NotNil(t, next)

		c, err := Decode(*next)
		require.NoError(t, err)
		assert.Equal(t, 2, c.ID)
	})
}
