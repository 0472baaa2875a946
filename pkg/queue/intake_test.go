package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsResolve(t *testing.T) {
	tests := []struct {
		name        string
		opts        Options
		wantAddr    string
		wantQueue   string
		wantDB      int
		expectError bool
	}{
		{
			name:      "defaults",
			opts:      Options{},
			wantAddr:  "localhost:6379",
			wantQueue: DefaultQueue,
			wantDB:    0,
		},
		{
			name:      "explicit_values",
			opts:      Options{Addr: "redis:6380", Queue: "turns", DB: "3"},
			wantAddr:  "redis:6380",
			wantQueue: "turns",
			wantDB:    3,
		},
		{
			name:        "invalid_db",
			opts:        Options{DB: "not-a-number"},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolved, db, err := tt.opts.resolve()
			if tt.expectError {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantAddr, resolved.Addr)
			assert.Equal(t, tt.wantQueue, resolved.Queue)
			assert.Equal(t, tt.wantDB, db)
		})
	}
}
