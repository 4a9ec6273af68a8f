package service

import (
	"context"
	"sync"
	"time"
)

// fakeClock drives every injected clock in these tests so token TTLs,
// rate-limit windows and session expiry can be crossed deterministically.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type mockMailer struct {
	mu        sync.Mutex
	lastTo    string
	lastLinks []string
	sendErr   error
}

func (m *mockMailer) SendMagicLinkEmail(toEmail, magicLink string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastTo = toEmail
	m.lastLinks = append(m.lastLinks, magicLink)
	return m.sendErr
}

func (m *mockMailer) SendOwnerInviteEmail(toEmail, _, inviteLink string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastTo = toEmail
	m.lastLinks = append(m.lastLinks, inviteLink)
	return m.sendErr
}

type mockPublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (p *mockPublisher) Publish(_ context.Context, subject string, _ interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	return nil
}

func (p *mockPublisher) Close() error { return nil }

func (p *mockPublisher) count(subject string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, s := range p.subjects {
		if s == subject {
			n++
		}
	}
	return n
}
