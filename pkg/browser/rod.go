package browser

import (
	"context"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/samueltorres/r8views/pkg/proxies"
)

type RodConfig struct {
	Bin         string
	Headless    bool
	ScrollSteps int
}

// RodLauncher starts one browser process per session so no state is shared
// between attempts.
type RodLauncher struct {
	cfg    RodConfig
	logger *logrus.Logger
}

func NewRodLauncher(cfg RodConfig, logger *logrus.Logger) *RodLauncher {
	if cfg.ScrollSteps <= 0 {
		cfg.ScrollSteps = 10
	}
	return &RodLauncher{cfg: cfg, logger: logger}
}

func (r *RodLauncher) Create(ctx context.Context, proxy *proxies.Proxy, identity string) (Session, error) {
	l := launcher.New().Context(ctx).Headless(r.cfg.Headless)
	if r.cfg.Bin != "" {
		l = l.Bin(r.cfg.Bin)
	}
	if proxy != nil {
		l = l.Proxy(proxy.String())
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, SessionCreationError(errors.Wrap(err, "launch browser"))
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		return nil, r.abort(l, nil, "connect to browser", err)
	}

	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, r.abort(l, b, "create page", err)
	}

	if identity != "" {
		err = page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: identity})
		if err != nil {
			return nil, r.abort(l, b, "set user agent", err)
		}
	}

	return &rodSession{
		launcher:    l,
		browser:     b,
		page:        page,
		scrollSteps: r.cfg.ScrollSteps,
	}, nil
}

type browserProcess interface {
	Kill()
	Cleanup()
}

// abort tears down a half created session: the browser connection when there
// is one, then the process and its user data dir.
func (r *RodLauncher) abort(proc browserProcess, b *rod.Browser, stage string, err error) error {
	r.logger.WithError(err).WithField("stage", stage).Warn("could not create browser session")

	if b != nil {
		if closeErr := b.Close(); closeErr != nil {
			r.logger.WithError(closeErr).Debug("could not close browser")
		}
	}
	proc.Kill()
	proc.Cleanup()

	return SessionCreationError(errors.Wrap(err, stage))
}

type rodSession struct {
	launcher    *launcher.Launcher
	browser     *rod.Browser
	page        *rod.Page
	scrollSteps int

	closeOnce sync.Once
	closeErr  error
}

func (s *rodSession) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	p := s.page.Context(ctx).Timeout(timeout)
	defer p.CancelTimeout()

	if err := p.Navigate(url); err != nil {
		return NavigationError(err)
	}
	if err := p.WaitLoad(); err != nil {
		return NavigationError(err)
	}
	return nil
}

// Scroll runs under the page context of the session; ctx only stops a
// scroll that has not started yet.
func (s *rodSession) Scroll(ctx context.Context, offsetY float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.page.Mouse.Scroll(0, offsetY, s.scrollSteps)
}

func (s *rodSession) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.browser.Close()
		s.launcher.Kill()
		s.launcher.Cleanup()
	})
	return s.closeErr
}
