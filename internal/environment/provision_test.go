package environment_test

import (
	"context"
	"errors"
	"testing"

	"github.com/signalnine/agentarena/internal/docker"
	"github.com/signalnine/agentarena/internal/environment"
	"github.com/signalnine/agentarena/internal/execution"
)

type fakeHandle struct {
	url   string
	stops int
}

func (h *fakeHandle) URL() string                    { return h.url }
func (h *fakeHandle) Stop(ctx context.Context) error { h.stops++; return nil }

type fakeLauncher struct {
	handle  *fakeHandle
	started []*docker.EnvOpts
	pingErr error
}

func (l *fakeLauncher) Start(ctx context.Context, opts *docker.EnvOpts) (environment.Handle, error) {
	l.started = append(l.started, opts)
	return l.handle, nil
}

func (l *fakeLauncher) Ping(ctx context.Context) error { return l.pingErr }

func TestProvisionSimulatedSite(t *testing.T) {
	p := environment.NewProvisioner(nil)
	env, err := p.Provision(context.Background(), "DashDish", map[string]any{})
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if env.Kind != "dashdish" || env.Site == nil {
		t.Fatalf("unexpected environment: %+v", env)
	}
	if _, ok := env.NewDriver().(*environment.SimDriver); !ok {
		t.Error("expected simulated driver")
	}
	if env.StartURL() != "http://dashdish.arena.local/" {
		t.Errorf("start url: %s", env.StartURL())
	}
	if err := env.Release(context.Background()); err != nil {
		t.Errorf("Release: %v", err)
	}
}

func TestProvisionUnknownKind(t *testing.T) {
	p := environment.NewProvisioner(nil)
	_, err := p.Provision(context.Background(), "atlantis", nil)
	if !errors.Is(err, execution.ErrConfiguration) {
		t.Errorf("got %v, want ErrConfiguration", err)
	}
}

func TestProvisionContainer(t *testing.T) {
	h := &fakeHandle{url: "http://localhost:4321"}
	l := &fakeLauncher{handle: h}
	p := environment.NewProvisioner(map[string]environment.KindConfig{
		"omnizon": {Image: "arena/omnizon:latest"},
	})
	p.Launcher = l

	env, err := p.Provision(context.Background(), "omnizon", map[string]any{"url": "http://localhost:4321/deals"})
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if len(l.started) != 1 || l.started[0].Image != "arena/omnizon:latest" {
		t.Fatalf("launcher calls: %+v", l.started)
	}
	if env.BaseURL != h.url {
		t.Errorf("base url: %s", env.BaseURL)
	}
	if _, ok := env.NewDriver().(*environment.HTTPDriver); !ok {
		t.Error("expected HTTP driver")
	}
	if env.StartURL() != "http://localhost:4321/deals" {
		t.Errorf("start url: %s", env.StartURL())
	}
	env.Release(context.Background())
	env.Release(context.Background())
	if h.stops != 1 {
		t.Errorf("container stopped %d times, want 1", h.stops)
	}
}

func TestProvisionerHealth(t *testing.T) {
	p := environment.NewProvisioner(nil)
	if !p.Health(context.Background()) {
		t.Error("provisioner without images should be healthy")
	}
	l := &fakeLauncher{pingErr: errors.New("daemon down")}
	p = environment.NewProvisioner(map[string]environment.KindConfig{"gomail": {Image: "arena/gomail"}})
	p.Launcher = l
	if p.Health(context.Background()) {
		t.Error("expected unhealthy when docker ping fails")
	}
}
