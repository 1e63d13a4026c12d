package core

import (
	"arboria/internal/infra/persistence/memory"
	"arboria/pkg/domain"
	"context"
	"strings"
	"time"
)

// Service exposes transactional inventory operations over a persistent store.
type Service struct {
	store   domain.PersistentStore
	clock   Clock
	logger  Logger
	metrics MetricsRecorder
	tracer  Tracer
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for defaults and statistics.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger installs a structured logger.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder installs a metrics sink observed after every operation.
func WithMetricsRecorder(rec MetricsRecorder) Option {
	return func(s *Service) {
		if rec != nil {
			s.metrics = rec
		}
	}
}

// WithTracer installs a tracer wrapped around every operation.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:   store,
		clock:   systemClock{},
		logger:  noopLogger{},
		metrics: noopMetrics{},
		tracer:  noopTracer{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService creates a service over a fresh memory store. A nil engine
// selects the default grid rules.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore {
	return s.store
}

// Now returns the service clock reading.
func (s *Service) Now() time.Time {
	return s.clock.Now()
}

func (s *Service) run(ctx context.Context, op string, fn func(domain.Transaction) error) (Result, error) {
	ctx, span := s.tracer.Start(ctx, op)
	started := time.Now()
	res, err := s.store.RunInTransaction(ctx, fn)
	s.finish(ctx, op, started, span, err)
	if err == nil {
		for _, v := range res.Violations {
			s.logger.Warn("rule violation", "operation", op, "rule", v.Rule, "severity", string(v.Severity), "message", v.Message)
		}
	}
	return res, err
}

func (s *Service) view(ctx context.Context, op string, fn func(domain.TransactionView) error) error {
	ctx, span := s.tracer.Start(ctx, op)
	started := time.Now()
	err := s.store.View(ctx, fn)
	s.finish(ctx, op, started, span, err)
	return err
}

func (s *Service) finish(ctx context.Context, op string, started time.Time, span TraceSpan, err error) {
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, time.Since(started))
	if err != nil {
		s.logger.Debug("operation failed", "operation", op, "kind", string(domain.KindOf(err)), "error", err.Error())
		return
	}
	s.logger.Debug("operation completed", "operation", op)
}

// FarmInput carries the fields accepted when creating a farm. Zero grid
// dimensions select the default size.
type FarmInput struct {
	Name        string
	Description string
	GridRows    int
	GridCols    int
	GPS         *GeoPoint
}

// FarmPatch lists the mutable farm fields; nil fields are left unchanged.
type FarmPatch struct {
	Name        *string
	Description *string
	GPS         *GeoPoint
}

// CreateFarm validates and persists a new farm.
func (s *Service) CreateFarm(ctx context.Context, in FarmInput) (Farm, error) {
	farm := Farm{
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		GridRows:    in.GridRows,
		GridCols:    in.GridCols,
		GPS:         in.GPS,
	}
	if farm.GridRows == 0 {
		farm.GridRows = domain.DefaultGridSize
	}
	if farm.GridCols == 0 {
		farm.GridCols = domain.DefaultGridSize
	}
	if err := farm.Validate(); err != nil {
		return Farm{}, err
	}
	var created Farm
	_, err := s.run(ctx, "create_farm", func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateFarm(farm)
		return err
	})
	return created, err
}

// GetFarm returns a farm by id.
func (s *Service) GetFarm(ctx context.Context, id string) (Farm, error) {
	var farm Farm
	err := s.view(ctx, "get_farm", func(v domain.TransactionView) error {
		f, ok := v.FindFarm(id)
		if !ok {
			return domain.NotFoundError{Entity: EntityFarm, ID: id}
		}
		farm = f
		return nil
	})
	return farm, err
}

// ListFarms returns every farm ordered by creation time.
func (s *Service) ListFarms(ctx context.Context) ([]Farm, error) {
	var farms []Farm
	err := s.view(ctx, "list_farms", func(v domain.TransactionView) error {
		farms = v.ListFarms()
		return nil
	})
	return farms, err
}

// UpdateFarm applies patch to the farm. Grid dimensions cannot change.
func (s *Service) UpdateFarm(ctx context.Context, id string, patch FarmPatch) (Farm, error) {
	var updated Farm
	_, err := s.run(ctx, "update_farm", func(tx domain.Transaction) error {
		var err error
		updated, err = tx.UpdateFarm(id, func(f *Farm) error {
			if patch.Name != nil {
				f.Name = strings.TrimSpace(*patch.Name)
			}
			if patch.Description != nil {
				f.Description = *patch.Description
			}
			if patch.GPS != nil {
				gps := *patch.GPS
				f.GPS = &gps
			}
			return f.Validate()
		})
		return err
	})
	return updated, err
}

// DeleteFarm removes a farm with all of its trees and interventions.
func (s *Service) DeleteFarm(ctx context.Context, id string) error {
	_, err := s.run(ctx, "delete_farm", func(tx domain.Transaction) error {
		return tx.DeleteFarm(id)
	})
	return err
}

// GridCell is one occupied cell of a farm grid.
type GridCell struct {
	Position string `json:"position"`
	Row      int    `json:"row"`
	Col      int    `json:"col"`
	TreeID   string `json:"tree_id"`
	Species  string `json:"species"`
	Health   Health `json:"health"`
}

// GridView is the occupancy map of a farm.
type GridView struct {
	FarmID  string     `json:"farm_id"`
	Rows    int        `json:"rows"`
	Cols    int        `json:"cols"`
	Columns []string   `json:"columns"`
	Cells   []GridCell `json:"cells"`
}

// FarmGrid returns the grid layout and occupied cells of a farm.
func (s *Service) FarmGrid(ctx context.Context, id string) (GridView, error) {
	var grid GridView
	err := s.view(ctx, "farm_grid", func(v domain.TransactionView) error {
		farm, ok := v.FindFarm(id)
		if !ok {
			return domain.NotFoundError{Entity: EntityFarm, ID: id}
		}
		grid = GridView{
			FarmID:  farm.ID,
			Rows:    farm.GridRows,
			Cols:    farm.GridCols,
			Columns: domain.ColumnLabels(farm.GridCols),
			Cells:   make([]GridCell, 0),
		}
		for _, t := range v.ListTreesByFarm(id) {
			cell, err := domain.ParseCode(t.Position)
			if err != nil {
				continue
			}
			grid.Cells = append(grid.Cells, GridCell{
				Position: t.Position,
				Row:      cell.Row,
				Col:      cell.Col,
				TreeID:   t.ID,
				Species:  t.Species,
				Health:   t.Health,
			})
		}
		return nil
	})
	return grid, err
}
