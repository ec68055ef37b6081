package tasks

import (
	"context"
	"fmt"
	"path"

	"github.com/ShayCichocki/assetflow/internal/config"
	"github.com/ShayCichocki/assetflow/internal/livereload"
	"github.com/ShayCichocki/assetflow/internal/logging"
	"github.com/ShayCichocki/assetflow/internal/supervisor"
	"github.com/ShayCichocki/assetflow/internal/watch"
)

// nodemon starts the development server. The task completes once the
// process is running, which releases tasks waiting on the server.
func (c *Catalog) nodemon(ctx context.Context) error {
	logger := logging.FromContext(ctx)
	p := c.cfg.Paths
	// Asset sources and outputs are handled by the watch rules.
	sup := supervisor.New(c.cfg.Root, c.cfg.Server,
		supervisor.WithIgnore(p.SrcRoot()+"/", p.Dist()+"/"),
		supervisor.WithMetrics(c.metrics),
		supervisor.WithLogger(c.logger),
	)
	sup.OnEvent(c.onServerEvent)

	if err := sup.Start(c.session.Context()); err != nil {
		return fmt.Errorf("starting development server: %w", err)
	}
	if err := c.session.Add("nodemon", sup); err != nil {
		return err
	}
	logger.Info("development server started", "command", c.cfg.Server.Command, "script", c.cfg.Server.Script, "pid", sup.PID())
	return nil
}

// onServerEvent reloads browsers shortly after a restart and reports crashes.
func (c *Catalog) onServerEvent(ev supervisor.Event) {
	switch ev.Type {
	case supervisor.EventRestart:
		if r := c.currentRelay(); r != nil {
			r.ReloadAfter(c.cfg.Proxy.ReloadDelay)
		}
	case supervisor.EventCrash:
		c.logger.Error("development server crashed", "exit_code", ev.ExitCode, "error", ev.Err)
		if r := c.currentRelay(); r != nil {
			r.Notify("Server crashed")
		}
	}
}

// browserSync starts the live-reload relay in front of the server.
func (c *Catalog) browserSync(ctx context.Context) error {
	relay := livereload.New(c.cfg.Proxy, c.cfg.Paths.Dist(),
		livereload.WithMetrics(c.metrics),
		livereload.WithLogger(c.logger),
	)
	if err := relay.Start(c.session.Context()); err != nil {
		return fmt.Errorf("starting live-reload relay: %w", err)
	}
	if err := c.session.Add("browser-sync", relay); err != nil {
		return err
	}
	c.setRelay(relay)
	logging.FromContext(ctx).Info("live-reload relay started", "addr", relay.Addr(), "target", c.cfg.Proxy.Target)
	return nil
}

// relayReloader forwards reloads to whichever relay is running.
type relayReloader struct{ c *Catalog }

func (r relayReloader) Reload() {
	if relay := r.c.currentRelay(); relay != nil {
		relay.Reload()
	}
}

// WatchRules returns the rules the watch task registers.
func (c *Catalog) WatchRules() []watch.Rule {
	p := c.cfg.Paths
	return []watch.Rule{
		{Name: "images", Patterns: []string{path.Join(p.SrcImages(), "**/*")}, Tasks: []string{"images"}},
		{Name: "scripts", Patterns: []string{path.Join(p.SrcScripts(), "**/*")}, Tasks: []string{"scripts"}},
		{Name: "styles", Patterns: []string{path.Join(p.SrcStyles(), "**/*")}, Tasks: []string{"styles"}},
		{
			Name:     "reload",
			Patterns: []string{"app.js", path.Join(p.SrcRoot(), "**/*"), "server/**/*"},
			FollowUp: watch.FollowUpReload,
			Fallback: true,
		},
	}
}

// NewRegistrar creates a registrar with the catalog's rules that re-runs
// tasks through the registered executor.
func (c *Catalog) NewRegistrar() (*watch.Registrar, error) {
	reg := watch.NewRegistrar(c.cfg.Root, c.runTasks,
		watch.WithReloader(relayReloader{c}),
		watch.WithWriteLog(c.writes, watch.DefaultSuppressWindow),
		watch.WithIgnore(supervisor.IgnoreMatcher([]string{
			c.cfg.Paths.Vendor + "/",
			".git/",
			config.StateDirName + "/",
		})),
		watch.WithMetrics(c.metrics),
		watch.WithLogger(c.logger),
	)
	for _, rule := range c.WatchRules() {
		if err := reg.Add(rule); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// watch registers the watch rules and keeps them running for the session.
func (c *Catalog) watch(ctx context.Context) error {
	reg, err := c.NewRegistrar()
	if err != nil {
		return err
	}
	if err := reg.Start(c.session.Context()); err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	if err := c.session.Add("watch", reg); err != nil {
		return err
	}
	logging.FromContext(ctx).Info("watching sources", "root", c.cfg.Paths.SrcRoot())
	return nil
}
