package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/Toumari/NorthStar/app/config"
	"github.com/stretchr/testify/require"
)

func TestFirestoreStore(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	ctx := context.Background()
	s, err := NewFirestoreStore(ctx, config.FirebaseConfig{ProjectID: "northstar-test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	exerciseStore(t, s, fmt.Sprintf("fstest-%d-", time.Now().UnixNano()))
}
