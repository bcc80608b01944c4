package ipc

import (
	"context"
	"time"

	"github.com/tiroq/memoscribe/internal/session"
)

// Source is what a Publisher snapshots.
type Source interface {
	Snapshot() session.Snapshot
	Subscribe() (<-chan struct{}, func())
}

// Publisher mirrors session changes into status.json, writing at most once
// per throttle interval. Meta fills the non-session fields of each Status.
type Publisher struct {
	dir      string
	src      Source
	throttle time.Duration
	meta     func(*Status)
	onErr    func(error)
}

// NewPublisher creates a publisher. meta and onErr may be nil.
func NewPublisher(dir string, src Source, throttle time.Duration, meta func(*Status), onErr func(error)) *Publisher {
	return &Publisher{dir: dir, src: src, throttle: throttle, meta: meta, onErr: onErr}
}

// Publish writes one status immediately.
func (p *Publisher) Publish() error {
	st := &Status{Session: p.src.Snapshot(), Timestamp: time.Now()}
	if p.meta != nil {
		p.meta(st)
	}
	err := WriteStatus(p.dir, st)
	if err != nil && p.onErr != nil {
		p.onErr(err)
	}
	return err
}

// Run publishes on every change until ctx is cancelled, then writes a
// final status.
func (p *Publisher) Run(ctx context.Context) {
	changed, cancel := p.src.Subscribe()
	defer cancel()
	p.Publish()

	var last time.Time
	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			p.Publish()
			return
		case <-changed:
			if pending != nil {
				continue
			}
			wait := p.throttle - time.Since(last)
			if wait <= 0 {
				p.Publish()
				last = time.Now()
				continue
			}
			pending = time.After(wait)
		case <-pending:
			pending = nil
			p.Publish()
			last = time.Now()
		}
	}
}
