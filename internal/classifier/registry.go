package classifier

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/andresmejia3/rotisserie/internal/types"
	"github.com/andresmejia3/rotisserie/internal/worker"
)

// Registry is the immutable title -> model table built once at startup.
type Registry struct {
	models  map[types.Title]Model
	pools   []*worker.Pool
	closers []io.Closer
}

// NewRegistry copies models into a registry. Used directly by tests and in-process fakes.
func NewRegistry(models map[types.Title]Model) *Registry {
	r := &Registry{models: make(map[types.Title]Model, len(models))}
	for t, m := range models {
		r.models[t] = m
	}
	return r
}

// Model returns the model loaded for t.
func (r *Registry) Model(t types.Title) (Model, bool) {
	m, ok := r.models[t]
	return m, ok
}

// Titles lists the titles that have a model.
func (r *Registry) Titles() []types.Title {
	var out []types.Title
	for _, t := range types.Titles {
		if _, ok := r.models[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Healthy reports whether every engine process is running.
func (r *Registry) Healthy() bool {
	for _, p := range r.pools {
		if !p.Healthy() {
			return false
		}
	}
	return true
}

// Close stops every engine process owned by the registry.
func (r *Registry) Close() error {
	var err error
	for _, c := range r.closers {
		err = multierr.Append(err, c.Close())
	}
	return err
}

// LoadOptions controls how inference engines are spawned.
type LoadOptions struct {
	Script  string // engine entrypoint, e.g. python/engine.py
	Engines int    // processes per title
}

// Load starts an engine pool per configured model path. Titles with an empty path are skipped.
// On failure every engine started so far is stopped.
func Load(ctx context.Context, paths map[types.Title]string, opts LoadOptions, log *zap.SugaredLogger) (*Registry, error) {
	if opts.Engines < 1 {
		opts.Engines = 1
	}

	r := &Registry{models: make(map[types.Title]Model)}
	for _, title := range types.Titles {
		path := paths[title]
		if path == "" {
			continue
		}

		var engines []worker.Inferer
		for i := 0; i < opts.Engines; i++ {
			e, err := worker.NewPythonEngine(ctx, i, opts.Script, path)
			if err != nil {
				for _, started := range engines {
					started.Close()
				}
				return nil, multierr.Append(fmt.Errorf("failed to load %s model %s: %w", title, path, err), r.Close())
			}
			engines = append(engines, e)
		}

		restart := func(id int) (worker.Inferer, error) {
			log.Warnw("restarting inference engine", "title", title, "engine", id)
			return worker.NewPythonEngine(ctx, id, opts.Script, path)
		}
		pool := worker.NewPool(restart, engines...)
		r.models[title] = poolModel{pool: pool}
		r.pools = append(r.pools, pool)
		r.closers = append(r.closers, pool)
		log.Infow("model loaded", "title", title, "path", path, "engines", opts.Engines)
	}
	return r, nil
}

// poolModel adapts an engine pool to the Model interface.
type poolModel struct {
	pool *worker.Pool
}

func (m poolModel) Infer(ctx context.Context, image []byte) (string, float64, error) {
	p, err := m.pool.Infer(ctx, image)
	if err != nil {
		return "", 0, err
	}
	return p.Label, p.Probability, nil
}
