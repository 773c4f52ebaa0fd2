package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aidis-project/aidis-core/internal/config"
)

func TestOpenDBWithRetryGivesUpAfterBudget(t *testing.T) {
	cfg := &config.Config{
		DatabaseHost: "127.0.0.1",
		DatabasePort: 1, // nothing listens here
		DatabaseUser: "aidis",
		DatabaseName: "aidis_dev",
		HTTPPort:     8080,
		PIDFile:      t.TempDir() + "/aidis.pid",
	}
	srv := New(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := srv.openDBWithRetry(ctx)
	assert.Error(t, err)
}

func TestShutdownIsSafeWithNothingStarted(t *testing.T) {
	cfg := &config.Config{PIDFile: t.TempDir() + "/aidis.pid"}
	srv := New(cfg)

	assert.NotPanics(t, func() {
		assert.NoError(t, srv.Shutdown())
	})
}
