package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/metrics"
)

// RenewResult lists what one renewal pass did
type RenewResult struct {
	Checked []string `json:"checked"`
	Renewed []string `json:"renewed"`
	Failed  []string `json:"failed"`
}

// RenewLabel renews the certificate of one subdomain if it is inside the window,
// then reloads the proxy so the new bundle is served.
func (r *Reconciler) RenewLabel(ctx context.Context, label string, daysBefore int) (bool, error) {
	label, err := normalizeLabel(label)
	if err != nil {
		return false, err
	}

	unlock, err := r.lock(ctx, label)
	if err != nil {
		return false, fmt.Errorf("failed to lock %s: %w", label, err)
	}
	defer unlock()

	fullDomain := r.FullDomain(label)
	renewed, err := r.renew(ctx, label, fullDomain, daysBefore)
	if err != nil || !renewed {
		return false, err
	}

	if err := r.proxy.Reinitialize(ctx); err != nil {
		return true, fmt.Errorf("certificate renewed but proxy reload failed: %w", err)
	}
	return true, nil
}

// RenewAll checks every fully active subdomain and renews certificates inside
// the window. The proxy is reloaded once if anything was renewed.
func (r *Reconciler) RenewAll(ctx context.Context, daysBefore int) (*RenewResult, error) {
	infos, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	result := &RenewResult{}
	var errs *multierror.Error

	for _, info := range infos {
		metrics.CertificateDaysLeft.WithLabelValues(info.FullDomain).Set(float64(info.CertStatus.DaysLeft))
		result.Checked = append(result.Checked, info.Label)

		renewed, err := r.renewLocked(ctx, info.Label, info.FullDomain, daysBefore)
		switch {
		case err != nil:
			result.Failed = append(result.Failed, info.Label)
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", info.FullDomain, err))
		case renewed:
			result.Renewed = append(result.Renewed, info.Label)
		}
	}

	if len(result.Renewed) > 0 {
		if err := r.proxy.Reinitialize(ctx); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("proxy reload after renewal: %w", err))
		}
	}

	r.logger.Info().
		Int("checked", len(result.Checked)).
		Int("renewed", len(result.Renewed)).
		Int("failed", len(result.Failed)).
		Msg("Certificate renewal pass finished")

	return result, errs.ErrorOrNil()
}

func (r *Reconciler) renewLocked(ctx context.Context, label, fullDomain string, daysBefore int) (bool, error) {
	unlock, err := r.lock(ctx, label)
	if err != nil {
		return false, err
	}
	defer unlock()
	return r.renew(ctx, label, fullDomain, daysBefore)
}

func (r *Reconciler) renew(ctx context.Context, label, fullDomain string, daysBefore int) (bool, error) {
	renewed, err := r.certs.Renew(ctx, fullDomain, daysBefore)
	if err != nil {
		r.publish(events.EventCertificateRenewFail,
			fmt.Sprintf("renewal of %s failed", fullDomain),
			map[string]string{"label": label, "domain": fullDomain, "error": err.Error()})
		return false, err
	}
	if renewed {
		r.publish(events.EventCertificateRenewed,
			fmt.Sprintf("%s renewed", fullDomain),
			map[string]string{"label": label, "domain": fullDomain})
	}
	return renewed, nil
}

// Renewer runs RenewAll on a fixed interval
type Renewer struct {
	rec        *Reconciler
	interval   time.Duration
	daysBefore int
	stopCh     chan struct{}
	doneCh     chan struct{}
}

// NewRenewer creates a renewal loop over rec
func NewRenewer(rec *Reconciler, interval time.Duration, daysBefore int) *Renewer {
	if interval <= 0 {
		interval = 12 * time.Hour
	}
	return &Renewer{
		rec:        rec,
		interval:   interval,
		daysBefore: daysBefore,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start begins the renewal loop. The first pass runs immediately.
func (w *Renewer) Start(ctx context.Context) {
	go w.run(ctx)
}

// Stop ends the loop and waits for an in-flight pass to finish
func (w *Renewer) Stop() {
	close(w.stopCh)
	<-w.doneCh
}

func (w *Renewer) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.pass(ctx)
	for {
		select {
		case <-ticker.C:
			w.pass(ctx)
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *Renewer) pass(ctx context.Context) {
	if _, err := w.rec.RenewAll(ctx, w.daysBefore); err != nil {
		w.rec.logger.Error().Err(err).Msg("Certificate renewal pass had failures")
	}
}
