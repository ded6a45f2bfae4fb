package app

import (
	"errors"
	"fmt"

	"relaymatrix/internal/config"
	"relaymatrix/internal/environment"
	"relaymatrix/internal/matrix"
	"relaymatrix/internal/quarantine"
	"relaymatrix/internal/suite"
	"relaymatrix/pkg/logging"
)

// MatrixSource labels registry entries declared by the matrix itself.
const MatrixSource = "matrix"

// Services holds the components a run is assembled from.
type Services struct {
	Spec     matrix.Spec
	Registry *quarantine.Registry
	Index    *environment.Index
	Catalog  *suite.Catalog
	Provider environment.Provider
	Launcher suite.Launcher
	Runner   *suite.Runner

	closers []func() error
}

// InitializeServices loads every input and builds the backend selected by
// the settings.
func InitializeServices(cfg *Config) (*Services, error) {
	settings := cfg.Settings

	spec, err := LoadSpec(settings)
	if err != nil {
		return nil, err
	}

	registry, err := LoadRegistry(spec, settings.QuarantinePath)
	if err != nil {
		return nil, err
	}

	catalog, err := suite.LoadCatalog(settings.SuitePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load suite catalog: %w", err)
	}
	logging.Info("Bootstrap", "Loaded %d test case(s) from %s", len(catalog.Cases), settings.SuitePath)

	index, err := environment.LoadIndex(settings.IndexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load package index: %w", err)
	}
	logging.Info("Bootstrap", "Loaded %d package(s) from %s", len(index.Packages), settings.IndexPath)

	backend, err := NewBackend(settings, index)
	if err != nil {
		return nil, err
	}

	return &Services{
		Spec:     spec,
		Registry: registry,
		Index:    index,
		Catalog:  catalog,
		Provider: backend.Provider,
		Launcher: backend.Launcher,
		Runner:   suite.NewRunner(catalog, backend.Launcher),
		closers:  []func() error{backend.Close},
	}, nil
}

// Close releases backend resources.
func (s *Services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LoadSpec reads the matrix named by the settings, or the built-in one.
// Settings fill the bounds the matrix leaves unset.
func LoadSpec(settings config.Config) (matrix.Spec, error) {
	var (
		spec matrix.Spec
		err  error
	)
	if settings.MatrixPath == "" {
		spec, err = matrix.Default()
	} else {
		spec, err = matrix.Load(settings.MatrixPath)
	}
	if err != nil {
		return matrix.Spec{}, err
	}

	if spec.MaxJobs == 0 {
		spec.MaxJobs = settings.MaxJobs
	}
	if spec.DefaultConcurrency == 0 {
		spec.DefaultConcurrency = settings.CaseConcurrency
	}
	return spec, nil
}

// LoadRegistry builds the quarantine registry from the families the matrix
// declares quarantined and from the quarantine file, if any.
func LoadRegistry(spec matrix.Spec, path string) (*quarantine.Registry, error) {
	var entries []quarantine.Entry
	for _, f := range spec.Families {
		if f.Quarantine != nil {
			entries = append(entries, quarantine.Entry{ID: f.Name, Reason: f.Quarantine.Reason, Source: MatrixSource})
		}
	}
	registry := quarantine.NewRegistry(entries...)

	if path != "" {
		added, err := quarantine.LoadInto(registry, path)
		if err != nil {
			return nil, fmt.Errorf("failed to load quarantine file: %w", err)
		}
		logging.Info("Bootstrap", "Loaded %d quarantine entr(y/ies) from %s", added, path)
	}
	return registry, nil
}

// Backend is a provider together with the launcher that runs cases in the
// environments it hands out.
type Backend struct {
	Provider environment.Provider
	Launcher suite.Launcher
	Close    func() error
}

// NewBackend builds the provider and launcher for settings.Backend.
func NewBackend(settings config.Config, index *environment.Index) (*Backend, error) {
	switch settings.Backend {
	case config.BackendLocal, "":
		p, err := environment.NewLocalProvider(index, environment.LocalOptions{
			WorkDir: settings.Local.WorkDir,
			Keep:    settings.Local.Keep,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create local environment provider: %w", err)
		}
		logging.Debug("Bootstrap", "Local environments are created under %s", p.Root())
		return &Backend{
			Provider: p,
			Launcher: suite.NewProcessLauncher(),
			Close:    p.Cleanup,
		}, nil

	case config.BackendDocker:
		rt, err := environment.NewMobyRuntime()
		if err != nil {
			return nil, fmt.Errorf("failed to connect to the docker daemon: %w", err)
		}
		p, err := environment.NewDockerProvider(index, rt, environment.DockerOptions{
			LabelPrefix:    settings.Docker.LabelPrefix,
			Keep:           settings.Docker.Keep,
			ReleaseTimeout: settings.ReleaseTimeout,
		})
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
		return &Backend{
			Provider: p,
			Launcher: suite.NewContainerLauncher(rt, p.AcquisitionLabel()),
			Close:    rt.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown backend %q", settings.Backend)
	}
}
