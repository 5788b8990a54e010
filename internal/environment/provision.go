package environment

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/signalnine/agentarena/internal/docker"
	"github.com/signalnine/agentarena/internal/execution"
)

// KindConfig configures how one environment kind is provisioned. With an
// Image the environment runs in a container; with a URL an already running
// application is used; otherwise the built-in simulated site is served.
type KindConfig struct {
	Image        string
	Command      []string
	Env          map[string]string
	URL          string
	ReadyTimeout time.Duration
}

// Handle is a running environment instance.
type Handle interface {
	URL() string
	Stop(ctx context.Context) error
}

// Launcher starts environment containers.
type Launcher interface {
	Start(ctx context.Context, opts *docker.EnvOpts) (Handle, error)
	Ping(ctx context.Context) error
}

type dockerLauncher struct{}

func (dockerLauncher) Start(ctx context.Context, opts *docker.EnvOpts) (Handle, error) {
	c, err := docker.StartEnvironment(ctx, opts)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (dockerLauncher) Ping(ctx context.Context) error { return docker.Ping(ctx) }

// Provisioner creates environments for runs.
type Provisioner struct {
	Kinds    map[string]KindConfig
	Launcher Launcher
	Client   *http.Client
}

func NewProvisioner(kinds map[string]KindConfig) *Provisioner {
	return &Provisioner{Kinds: kinds, Launcher: dockerLauncher{}}
}

// Environment is one provisioned environment. Release must be called when
// the run ends; it is safe to call more than once.
type Environment struct {
	Kind    string
	Config  map[string]any
	BaseURL string
	Site    *Site

	client  *http.Client
	handle  Handle
	release sync.Once
}

// Provision resolves kind and starts its environment. Unsupported kinds and
// malformed configuration return ErrConfiguration.
func (p *Provisioner) Provision(ctx context.Context, kind string, cfg map[string]any) (*Environment, error) {
	k, err := NormalizeKind(kind)
	if err != nil {
		return nil, err
	}
	env := &Environment{Kind: k, Config: cfg, client: p.Client}
	kc := p.Kinds[k]

	switch {
	case kc.Image != "":
		launcher := p.Launcher
		if launcher == nil {
			launcher = dockerLauncher{}
		}
		h, err := launcher.Start(ctx, &docker.EnvOpts{
			Image:        kc.Image,
			Command:      kc.Command,
			Env:          kc.Env,
			ReadyTimeout: kc.ReadyTimeout,
			Labels:       map[string]string{"agentarena.environment": k},
		})
		if err != nil {
			return nil, execution.Errorf(execution.ErrConfiguration, "starting %s environment: %v", k, err)
		}
		env.handle = h
		env.BaseURL = h.URL()
	case kc.URL != "":
		env.BaseURL = kc.URL
	default:
		if u, ok := cfg["base_url"].(string); ok && u != "" {
			env.BaseURL = u
			break
		}
		site, err := DefaultSite(k)
		if err != nil {
			return nil, err
		}
		if err := site.ApplyConfig(cfg); err != nil {
			return nil, err
		}
		env.Site = site
	}
	return env, nil
}

// Health pings the container runtime when any kind needs it.
func (p *Provisioner) Health(ctx context.Context) bool {
	for _, kc := range p.Kinds {
		if kc.Image == "" {
			continue
		}
		launcher := p.Launcher
		if launcher == nil {
			launcher = dockerLauncher{}
		}
		if err := launcher.Ping(ctx); err != nil {
			log.Printf("warning: environment provisioning unhealthy: %v", err)
			return false
		}
		return true
	}
	return true
}

// NewDriver returns the driver for this environment.
func (e *Environment) NewDriver() Driver {
	if e.Site != nil {
		return NewSimDriver(e.Site)
	}
	return NewHTTPDriver(e.BaseURL, e.client)
}

// StartURL is environment_config.url when set, otherwise the home page.
func (e *Environment) StartURL() string {
	if u, ok := e.Config["url"].(string); ok && u != "" {
		return u
	}
	if e.Site != nil {
		return "http://" + e.Site.Host + "/"
	}
	return e.BaseURL
}

// Release stops the environment's container, if any.
func (e *Environment) Release(ctx context.Context) error {
	var err error
	e.release.Do(func() {
		if e.handle != nil {
			err = e.handle.Stop(ctx)
		}
	})
	return err
}
