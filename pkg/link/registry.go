package link

import (
	"context"
	"io"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"

	"github.com/robotalks/crtplink/pkg/framework"
)

type activeDriver struct {
	desc   Descriptor
	driver Driver
}

// Registry holds the drivers selected for this process.
type Registry struct {
	conf    *Config
	metrics *Metrics
	drivers []activeDriver
}

// NewRegistry selects and instantiates drivers from the registered
// descriptors:
//   - with conf.SimOnly, simulated drivers serve the radio family;
//   - otherwise radio drivers are used when hardware is present,
//     falling back to simulated drivers;
//   - aux drivers are added when present.
func NewRegistry(conf *Config) (*Registry, error) {
	if conf == nil {
		conf = NewConfig()
	}
	return newRegistry(conf, Descriptors())
}

func newRegistry(conf *Config, descs []Descriptor) (*Registry, error) {
	r := &Registry{conf: conf, metrics: NewMetrics(conf.Metrics)}

	var radios, sims, aux []Descriptor
	for _, desc := range descs {
		switch desc.Role {
		case RoleRadio:
			if !conf.SimOnly && desc.present(conf) {
				radios = append(radios, desc)
			}
		case RoleSimulated:
			if desc.present(conf) {
				sims = append(sims, desc)
			}
		case RoleAux:
			if desc.present(conf) {
				aux = append(aux, desc)
			}
		}
	}

	family := radios
	if len(family) == 0 {
		if !conf.SimOnly {
			glog.Info("no radio hardware present, using simulated drivers")
		}
		family = sims
	}

	var errs framework.AggregatedError
	for _, desc := range append(family, aux...) {
		drv, err := desc.New(conf)
		if err != nil {
			glog.Warningf("driver %s skipped: %v", desc.Name, err)
			errs.Add(err)
			continue
		}
		glog.V(2).Infof("driver %s (%s) enabled", desc.Name, desc.Role)
		r.drivers = append(r.drivers, activeDriver{desc: desc, driver: drv})
	}
	if len(r.drivers) == 0 {
		if err := errs.Aggregate(); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Config returns the configuration the registry was created with.
func (r *Registry) Config() *Config {
	return r.conf
}

// Drivers returns the names of active drivers.
func (r *Registry) Drivers() []string {
	names := make([]string, len(r.drivers))
	for n, d := range r.drivers {
		names[n] = d.desc.Name
	}
	return names
}

// ScanInterfaces scans all active drivers concurrently and concatenates
// the results in driver order. A failing driver is logged and skipped.
func (r *Registry) ScanInterfaces(ctx context.Context, addr *Address) ([]URI, error) {
	results := make([][]URI, len(r.drivers))
	var g errgroup.Group
	for n, d := range r.drivers {
		n, d := n, d
		g.Go(func() error {
			found, err := d.driver.Scan(ctx, addr)
			if err != nil {
				glog.Warningf("scan %s failed: %v", d.desc.Name, err)
				return nil
			}
			glog.V(2).Infof("scan %s: %d found", d.desc.Name, len(found))
			results[n] = found
			return nil
		})
	}
	g.Wait()
	var uris []URI
	for _, found := range results {
		uris = append(uris, found...)
	}
	return uris, ctx.Err()
}

// Open parses uri and opens a session.
func (r *Registry) Open(ctx context.Context, uri string) (*Session, error) {
	u, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	return r.OpenURI(ctx, u)
}

// OpenURI opens a session on the first active driver handling the scheme.
func (r *Registry) OpenURI(ctx context.Context, uri URI) (*Session, error) {
	d := r.find(uri.Scheme)
	if d == nil {
		return nil, &ConnectError{URI: uri.String(), Err: ErrNoDriver}
	}
	s := newSession(uri, d.desc.Name, r.conf, r.metrics.For(d.desc.Name))
	l, err := d.driver.Connect(ctx, uri, s)
	if err != nil {
		s.abort()
		return nil, NewConnectError(uri, err)
	}
	s.attach(l)
	glog.Infof("%s connected via %s", uri, d.desc.Name)
	return s, nil
}

// Close releases driver resources. Sessions must be closed separately.
func (r *Registry) Close() error {
	var errs framework.AggregatedError
	for _, d := range r.drivers {
		if closer, ok := d.driver.(io.Closer); ok {
			errs.Add(closer.Close())
		}
	}
	return errs.Aggregate()
}

func (r *Registry) find(scheme string) *activeDriver {
	for n := range r.drivers {
		if r.drivers[n].desc.Handles(scheme) {
			return &r.drivers[n]
		}
	}
	return nil
}
