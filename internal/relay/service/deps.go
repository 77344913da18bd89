// Package service holds the curbside relay's business flows: inbound message
// orchestration, voice escalation and the order lifecycle.
package service

import (
	"time"

	"curbside_relay/internal/relay/escalation"
	"curbside_relay/internal/relay/repository"
	"curbside_relay/platform/logger"
	"curbside_relay/platform/phonelock"
)

const (
	defaultOptInWindow          = 24 * time.Hour
	defaultResolutionAlertDelay = 10 * time.Second
	defaultReviewRequestDelay   = 15 * time.Second
	historyLimit                = 5
)

// Deps is shared by the orchestrator, voice bridge and lifecycle service.
type Deps struct {
	Store      repository.Store
	Classifier Classifier
	Policy     *escalation.Policy
	Messenger  Messenger
	Voice      VoiceCaller
	Staff      StaffAlerter
	Fanout     Broadcaster
	Scheduler  Scheduler
	Archive    Archiver
	Locker     phonelock.Locker
	Messages   Messages
	Log        *logger.Logger

	OptInWindow          time.Duration
	ResolutionAlertDelay time.Duration
	ReviewRequestDelay   time.Duration

	Now func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Policy == nil && d.Store != nil {
		d.Policy = escalation.New(d.Store)
	}
	if d.Archive == nil {
		d.Archive = noopArchiver{}
	}
	if d.Locker == nil {
		d.Locker = phonelock.NewKeyedMutex()
	}
	if d.OptInWindow <= 0 {
		d.OptInWindow = defaultOptInWindow
	}
	if d.ResolutionAlertDelay <= 0 {
		d.ResolutionAlertDelay = defaultResolutionAlertDelay
	}
	if d.ReviewRequestDelay <= 0 {
		d.ReviewRequestDelay = defaultReviewRequestDelay
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}
