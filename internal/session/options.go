package session

import (
	"time"

	"github.com/balaji-21cb003/browser-use-webrtc-sub000/internal/cdpcontrol"
)

// Options tune one session's detection, recovery and streaming behaviour.
type Options struct {
	// Detection cadence by recent activity level.
	DetectFast   time.Duration
	DetectNormal time.Duration
	DetectIdle   time.Duration

	// ActivityLockTTL pins a high-confidence active tab so near-tied
	// scores don't flap the stream between tabs.
	ActivityLockTTL time.Duration

	// ManualOverrideWindow suppresses automatic switching after an
	// explicit tab switch request.
	ManualOverrideWindow time.Duration

	// SnapshotTTL caches per-tab activity probes between detection passes.
	SnapshotTTL time.Duration

	RecoveryMaxAttempts int
	RecoveryBackoff     time.Duration

	EvalTimeout      time.Duration
	ReconcileTimeout time.Duration

	Screencast cdpcontrol.ScreencastOptions
	Scoring    ScoringPolicy
}

// DefaultOptions returns the tuning used in production.
func DefaultOptions() Options {
	return Options{
		DetectFast:           300 * time.Millisecond,
		DetectNormal:         800 * time.Millisecond,
		DetectIdle:           2 * time.Second,
		ActivityLockTTL:      5 * time.Second,
		ManualOverrideWindow: 3 * time.Second,
		SnapshotTTL:          time.Second,
		RecoveryMaxAttempts:  3,
		RecoveryBackoff:      500 * time.Millisecond,
		EvalTimeout:          5 * time.Second,
		ReconcileTimeout:     2 * time.Second,
		Screencast:           cdpcontrol.DefaultScreencastOptions(),
		Scoring:              DefaultScoringPolicy(),
	}
}

// normalize fills zero fields so partially built Options behave.
func (o Options) normalize() Options {
	d := DefaultOptions()
	if o.DetectFast <= 0 {
		o.DetectFast = d.DetectFast
	}
	if o.DetectNormal <= 0 {
		o.DetectNormal = d.DetectNormal
	}
	if o.DetectIdle <= 0 {
		o.DetectIdle = d.DetectIdle
	}
	if o.ActivityLockTTL <= 0 {
		o.ActivityLockTTL = d.ActivityLockTTL
	}
	if o.ManualOverrideWindow <= 0 {
		o.ManualOverrideWindow = d.ManualOverrideWindow
	}
	if o.SnapshotTTL <= 0 {
		o.SnapshotTTL = d.SnapshotTTL
	}
	if o.RecoveryMaxAttempts <= 0 {
		o.RecoveryMaxAttempts = d.RecoveryMaxAttempts
	}
	if o.RecoveryBackoff <= 0 {
		o.RecoveryBackoff = d.RecoveryBackoff
	}
	if o.EvalTimeout <= 0 {
		o.EvalTimeout = d.EvalTimeout
	}
	if o.ReconcileTimeout <= 0 {
		o.ReconcileTimeout = d.ReconcileTimeout
	}
	if o.Screencast.Format == "" {
		o.Screencast = d.Screencast
	}
	if o.Scoring.HighConfidence == 0 {
		o.Scoring = d.Scoring
	}
	return o
}
