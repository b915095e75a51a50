package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/andresmejia3/rotisserie/internal/capture"
	"github.com/andresmejia3/rotisserie/internal/classifier"
	"github.com/andresmejia3/rotisserie/internal/config"
	"github.com/andresmejia3/rotisserie/internal/debugstore"
	"github.com/andresmejia3/rotisserie/internal/extraction"
	"github.com/andresmejia3/rotisserie/internal/resolver"
	"github.com/andresmejia3/rotisserie/internal/types"
	"github.com/andresmejia3/rotisserie/internal/utils"
)

// newSource wires streamlink and ffmpeg. Both binaries must be on PATH.
func newSource() (extraction.Source, error) {
	for _, bin := range []string{"streamlink", "ffmpeg"} {
		if err := utils.RequireBinary(bin); err != nil {
			return extraction.Source{}, err
		}
	}
	lister := resolver.StreamlinkLister{Token: Cfg.Token, Timeout: Cfg.ResolveTimeout}
	return extraction.Source{
		Resolver: resolver.New(lister, Log.Named("resolver")),
		Capturer: capture.New(Cfg.CaptureTimeout, Log.Named("capture")),
	}, nil
}

// inproc is everything an in-process extraction needs. close releases engines and
// flushes pending debug images.
type inproc struct {
	service  *extraction.Service
	registry *classifier.Registry
	debug    *debugstore.Store
}

func (r *inproc) close() {
	if err := r.registry.Close(); err != nil {
		Log.Warnw("engine shutdown", "error", err)
	}
	if r.debug != nil {
		r.debug.Close()
	}
}

// newInproc loads the models for titles (all configured titles when empty).
func newInproc(ctx context.Context, titles []types.Title, observe extraction.Observer) (*inproc, error) {
	if err := Cfg.Validate(config.NeedModels); err != nil {
		return nil, err
	}
	paths := Cfg.Models
	if len(titles) > 0 {
		paths = map[types.Title]string{}
		for _, t := range titles {
			p, ok := Cfg.Models[t]
			if !ok {
				return nil, fmt.Errorf("no model configured for %s (set ROTISSERIE_MODEL_%s)", t, strings.ToUpper(string(t)))
			}
			paths[t] = p
		}
	}

	source, err := newSource()
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(os.Stderr, "⚙️  Spawning %d engine(s) per model...\n", Cfg.Engines)
	registry, err := classifier.Load(ctx, paths, classifier.LoadOptions{Script: Cfg.EngineScript, Engines: Cfg.Engines}, Log.Named("classifier"))
	if err != nil {
		return nil, err
	}

	rt := &inproc{registry: registry}
	if Cfg.Debug {
		rt.debug, err = debugstore.New(Cfg.DebugDir, Log.Named("debug"))
		if err != nil {
			registry.Close()
			return nil, err
		}
	}
	adapter := classifier.NewAdapter(rt.debug, Log.Named("classifier"))
	rt.service = extraction.New(source, adapter, registry, observe, Log.Named("extraction"))
	return rt, nil
}
