package reconciler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/burrow/pkg/events"
)

func TestRenewAll(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	_, err := h.rec.Define(ctx, "fresh", appConfig)
	require.NoError(t, err)
	h.certs.daysLeft = 5
	_, err = h.rec.Define(ctx, "stale", appConfig)
	require.NoError(t, err)

	reloadsBefore := h.proxy.reinits

	result, err := h.rec.RenewAll(ctx, 30)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"fresh", "stale"}, result.Checked)
	assert.Equal(t, []string{"stale"}, result.Renewed)
	assert.Empty(t, result.Failed)
	assert.Equal(t, reloadsBefore+1, h.proxy.reinits)
	assert.Contains(t, h.events.kinds(), events.EventCertificateRenewed)

	// Nothing left inside the window: no reload
	result, err = h.rec.RenewAll(ctx, 30)
	require.NoError(t, err)
	assert.Empty(t, result.Renewed)
	assert.Equal(t, reloadsBefore+1, h.proxy.reinits)
}

func TestRenewAllCollectsFailures(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.certs.daysLeft = 1
	_, err := h.rec.Define(ctx, "app", appConfig)
	require.NoError(t, err)
	h.certs.renewErr = errors.New("acme: rate limited")

	result, err := h.rec.RenewAll(ctx, 30)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
	assert.Equal(t, []string{"app"}, result.Failed)
	assert.Contains(t, h.events.kinds(), events.EventCertificateRenewFail)
}

func TestRenewLabel(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.certs.daysLeft = 3
	_, err := h.rec.Define(ctx, "app", appConfig)
	require.NoError(t, err)

	renewed, err := h.rec.RenewLabel(ctx, "app", 30)
	require.NoError(t, err)
	assert.True(t, renewed)

	renewed, err = h.rec.RenewLabel(ctx, "app", 30)
	require.NoError(t, err)
	assert.False(t, renewed)

	h.proxy.reinitErr = errors.New("nginx: [emerg]")
	h.certs.bundles["app.example.com"].DaysLeft = 0
	renewed, err = h.rec.RenewLabel(ctx, "app", 30)
	assert.True(t, renewed)
	assert.Error(t, err)
}

func TestRenewerRunsImmediately(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.certs.daysLeft = 2
	_, err := h.rec.Define(ctx, "app", appConfig)
	require.NoError(t, err)

	w := NewRenewer(h.rec, time.Hour, 30)
	w.Start(ctx)

	require.Eventually(t, func() bool {
		for _, k := range h.events.kinds() {
			if k == events.EventCertificateRenewed {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	w.Stop()
}
