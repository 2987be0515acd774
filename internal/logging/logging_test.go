package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCleanupLogsKeepsNewest(t *testing.T) {
	tmp := t.TempDir()
	Configure(tmp)
	defer Configure("")

	base := time.Now()
	for i := 0; i < 6; i++ {
		ts := base.Add(time.Duration(i) * time.Hour)
		name := fmt.Sprintf("debug-%s.log", ts.Format("20060102-150405"))
		require.NoError(t, os.WriteFile(filepath.Join(tmp, name), []byte("x"), 0o644))
	}

	require.NoError(t, CleanupLogs(3))

	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	require.Len(t, entries, 3)
}
