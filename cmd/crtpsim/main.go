package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/golang/glog"

	"github.com/robotalks/crtplink/pkg/echo"
	fx "github.com/robotalks/crtplink/pkg/framework"
	"github.com/robotalks/crtplink/pkg/link"
	"github.com/robotalks/crtplink/pkg/link/mqtt"
	"github.com/robotalks/crtplink/pkg/link/sim"
)

var (
	addrs   string
	mqttURL string
)

func init() {
	link.SetupFlags()
	flag.StringVar(&addrs, "addr", addrs, "Comma separated addresses to simulate, all table entries when empty.")
	flag.StringVar(&mqttURL, "announce", mqttURL, "MQTT broker URL to also announce echo endpoints on.")
}

func simulated() ([]link.URI, error) {
	if addrs == "" {
		return sim.Entries(), nil
	}
	var uris []link.URI
	for _, s := range strings.Split(addrs, ",") {
		addr, err := link.ParseAddress(strings.TrimSpace(s))
		if err != nil {
			return nil, err
		}
		uri, ok := sim.Lookup(addr)
		if !ok {
			glog.Warningf("address %s not in simulation table, skipped", addr)
			continue
		}
		uris = append(uris, uri)
	}
	return uris, nil
}

// endpoint is an echo.Endpoint owning resources released by Close.
type endpoint interface {
	echo.Endpoint
	Close() error
}

// opener opens the endpoint of one kind simulating uri.
type opener struct {
	kind string
	open func(ctx context.Context, uri link.URI) (endpoint, error)
}

func openers(ns string) []opener {
	list := []opener{{
		kind: "sim",
		open: func(ctx context.Context, uri link.URI) (endpoint, error) {
			peer, err := sim.CreatePeer(ns, uri.Address)
			if err != nil {
				return nil, err
			}
			return peer, nil
		},
	}}
	if mqttURL != "" {
		list = append(list, opener{
			kind: "mqtt",
			open: func(ctx context.Context, uri link.URI) (endpoint, error) {
				ep, err := mqtt.NewEndpoint(ctx, mqttURL, uri.Address, mqtt.Meta{
					Channel:     uri.Channel,
					DataRate:    uri.DataRate.String(),
					Description: "echo simulator",
				})
				if err != nil {
					return nil, err
				}
				return ep, nil
			},
		})
	}
	return list
}

// startEchoes runs an echo on every endpoint opened for uris. When any
// open fails, the echoes already started are stopped and their endpoints
// closed before the error is returned.
func startEchoes(runner *fx.Runner, uris []link.URI, kinds []opener) ([]endpoint, error) {
	var endpoints []endpoint
	for _, uri := range uris {
		for _, o := range kinds {
			ep, err := o.open(runner.Context, uri)
			if err != nil {
				var errs fx.AggregatedError
				errs.Add(fmt.Errorf("open %s %s failed: %w", o.kind, uri.Address, err))
				errs.Add(runner.StopAndWait(), closeAll(endpoints))
				return nil, errs.Aggregate()
			}
			endpoints = append(endpoints, ep)
			runner.Go(echo.New(o.kind+":"+uri.Address.String(), ep))
			glog.Infof("simulating %s on %s", uri, o.kind)
		}
	}
	return endpoints, nil
}

func closeAll(endpoints []endpoint) error {
	var errs fx.AggregatedError
	for _, ep := range endpoints {
		errs.Add(ep.Close())
	}
	return errs.Aggregate()
}

func main() {
	flag.Parse()
	defer glog.Flush()

	uris, err := simulated()
	if err != nil {
		glog.Exit(err)
	}
	runner := fx.NewRunner().HandleSignals()
	endpoints, err := startEchoes(runner, uris, openers(link.Default().Namespace()))
	if err != nil {
		glog.Exit(err)
	}

	var errs fx.AggregatedError
	errs.Add(runner.Wait(), closeAll(endpoints))
	if err = errs.Aggregate(); err != nil {
		glog.Error(err)
		glog.Flush()
		os.Exit(1)
	}
}
