package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetentionWorker_Sweep(t *testing.T) {
	store := newTestStore(t)
	base := time.Now().UTC()

	appendAt(t, store, "AG-250115-AB12CD", "contract_created", "system", base.Add(-100*24*time.Hour))
	appendAt(t, store, "AG-250115-AB12CD", "status_change", "system", base.Add(-time.Hour))

	worker := NewRetentionWorker(store, 90, nil)
	worker.Sweep()

	_, _, total, err := store.List(ListFilter{}, 10, "")
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("VOICEPACT_AUDIT_RETENTION_DAYS", "30")
	t.Setenv("VOICEPACT_AUDIT_ENABLED", "false")

	cfg := ConfigFromEnv()
	assert.Equal(t, 30, cfg.RetentionDays)
	assert.False(t, cfg.Enabled)

	t.Setenv("VOICEPACT_AUDIT_RETENTION_DAYS", "not-a-number")
	cfg = ConfigFromEnv()
	assert.Equal(t, 365, cfg.RetentionDays)
}
