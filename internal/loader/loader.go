package loader

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"strata/internal/codec"
	"strata/internal/domain"
	"strata/internal/paging"
	"strata/internal/schema"
	"strata/internal/service"
)

// ImportLock is the advisory lock held while a bundle is imported
const ImportLock = "strata:import"

// ReadFile parses a bundle file, picking the format from its extension
func ReadFile(path string) (*codec.Bundle, error) {
	importer, ok := codec.ImporterFor(filepath.Ext(path))
	if !ok {
		return nil, fmt.Errorf("unsupported bundle format: %s", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bundle: %w", err)
	}
	defer f.Close()

	bundle, err := importer.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return bundle, nil
}

// ImportOptions control Import
type ImportOptions struct {
	// Publish publishes every imported entity in one batch
	Publish bool
}

// ImportFailure is an entity that could not be imported
type ImportFailure struct {
	ID    string        `json:"id,omitempty"`
	Type  string        `json:"type"`
	Error *domain.Error `json:"error"`
}

// ImportReport summarizes an import
type ImportReport struct {
	SchemaEffect domain.Effect   `json:"schemaEffect,omitempty"`
	Created      int             `json:"created"`
	Updated      int             `json:"updated"`
	Unchanged    int             `json:"unchanged"`
	Published    int             `json:"published"`
	Failed       []ImportFailure `json:"failed,omitempty"`
}

// Loader moves bundles in and out of a repository
type Loader struct {
	engine   *service.Engine
	lockOpts service.WithAdvisoryLockOptions
	logger   zerolog.Logger
}

// New creates a loader
func New(engine *service.Engine, logger zerolog.Logger) *Loader {
	return &Loader{
		engine: engine,
		logger: logger.With().Str("component", "loader").Logger(),
	}
}

// SetLockOptions sets the lease used for the import lock
func (l *Loader) SetLockOptions(opts service.WithAdvisoryLockOptions) {
	l.lockOpts = opts
}

// ApplySchemaFile applies the schema section of a bundle file
func (l *Loader) ApplySchemaFile(ctx context.Context, session domain.Session, path string) (*service.SchemaUpdatePayload, error) {
	bundle, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	if bundle.Schema == nil {
		return nil, fmt.Errorf("bundle %s has no schema", path)
	}
	payload, err := l.engine.UpdateSchemaSpecification(ctx, session, *bundle.Schema)
	if err != nil {
		return nil, err
	}
	l.logger.Info().
		Str("file", path).
		Str("effect", string(payload.Effect)).
		Int("version", payload.Schema.Version).
		Msg("schema file applied")
	return payload, nil
}

// Import applies a bundle's schema and writes its entities while holding
// the import lock. Entities with an id are upserted. Entities referencing
// entities later in the bundle are retried until no more progress is made.
func (l *Loader) Import(ctx context.Context, session domain.Session, bundle *codec.Bundle, opts ImportOptions) (*ImportReport, error) {
	report := &ImportReport{}
	err := l.engine.WithAdvisoryLock(ctx, session, ImportLock, l.lockOpts, func(ctx context.Context) error {
		if bundle.Schema != nil {
			payload, err := l.engine.UpdateSchemaSpecification(ctx, session, *bundle.Schema)
			if err != nil {
				return err
			}
			report.SchemaEffect = payload.Effect
		}

		written, err := l.writeEntities(ctx, session, bundle.Entities, report)
		if err != nil {
			return err
		}
		if opts.Publish && len(written) > 0 {
			return l.publish(ctx, session, written, report)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.logger.Info().
		Int("created", report.Created).
		Int("updated", report.Updated).
		Int("published", report.Published).
		Int("failed", len(report.Failed)).
		Msg("bundle imported")
	return report, nil
}

func (l *Loader) writeEntities(ctx context.Context, session domain.Session, entities []domain.EntityCreate, report *ImportReport) ([]domain.EntityVersionReference, error) {
	var written []domain.EntityVersionReference
	pending := entities
	for len(pending) > 0 {
		var (
			retry    []domain.EntityCreate
			failures []ImportFailure
		)
		for _, create := range pending {
			payload, err := l.write(ctx, session, create)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				e := domain.AsError(err)
				if e.Kind == domain.ErrorGeneric {
					return nil, e
				}
				retry = append(retry, create)
				failures = append(failures, ImportFailure{ID: create.ID, Type: create.Info.Type, Error: e})
				continue
			}
			switch payload.Effect {
			case domain.EffectCreated:
				report.Created++
			case domain.EffectUpdated:
				report.Updated++
			default:
				report.Unchanged++
			}
			written = append(written, domain.EntityVersionReference{ID: payload.Entity.ID})
		}
		if len(retry) == len(pending) {
			report.Failed = failures
			break
		}
		pending = retry
	}
	return written, nil
}

func (l *Loader) write(ctx context.Context, session domain.Session, create domain.EntityCreate) (*domain.EntityMutationPayload, error) {
	if create.ID != "" {
		return l.engine.UpsertEntity(ctx, session, create, domain.EntityMutationOptions{})
	}
	return l.engine.CreateEntity(ctx, session, create, domain.EntityMutationOptions{})
}

func (l *Loader) publish(ctx context.Context, session domain.Session, refs []domain.EntityVersionReference, report *ImportReport) error {
	results, err := l.engine.PublishEntities(ctx, session, refs)
	if err != nil {
		return err
	}
	for i, r := range results {
		if !r.IsOk() {
			report.Failed = append(report.Failed, ImportFailure{ID: refs[i].ID, Error: r.Err})
			continue
		}
		if r.Value.Effect == domain.EffectPublished {
			report.Published++
		}
	}
	return nil
}

// ExportOptions control Export
type ExportOptions struct {
	Format    string // json or yaml
	Published bool   // Export the published versions
	Query     domain.EntityQuery
}

// Export writes the schema and the matching entities as a bundle. The
// migration log is left out since the entities are written in their
// current shape.
func (l *Loader) Export(ctx context.Context, session domain.Session, w io.Writer, opts ExportOptions) (int, error) {
	exporter, ok := codec.ExporterFor(opts.Format)
	if !ok {
		return 0, fmt.Errorf("unsupported export format: %s", opts.Format)
	}

	var (
		spec schema.Specification
		err  error
	)
	if opts.Published {
		spec, err = l.engine.GetPublishedSchemaSpecification(ctx)
	} else {
		spec, err = l.engine.GetSchemaSpecification(ctx)
	}
	if err != nil {
		return 0, err
	}

	var entities []*domain.Entity
	after := ""
	for {
		var conn *paging.Connection[*domain.Entity]
		if opts.Published {
			conn, err = l.engine.GetPublishedEntities(ctx, session, opts.Query, paging.First(paging.MaxCount, after))
		} else {
			conn, err = l.engine.GetEntities(ctx, session, opts.Query, paging.First(paging.MaxCount, after))
		}
		if err != nil {
			return 0, err
		}
		if conn == nil {
			break
		}
		for _, edge := range conn.Edges {
			entities = append(entities, edge.Node)
		}
		if !conn.PageInfo.HasNextPage {
			break
		}
		after = conn.PageInfo.EndCursor
	}

	update := SpecificationToUpdate(spec)
	if err := exporter.Export(codec.BundleFromEntities(&update, entities), w); err != nil {
		return 0, err
	}
	return len(entities), nil
}

// SpecificationToUpdate turns a full specification into an update that
// recreates it on an empty repository, without the migration log
func SpecificationToUpdate(spec schema.Specification) schema.SpecificationUpdate {
	update := schema.SpecificationUpdate{
		Patterns: spec.Patterns,
		Indexes:  spec.Indexes,
	}
	for _, t := range spec.EntityTypes {
		update.EntityTypes = append(update.EntityTypes, schema.EntityTypeSpecificationUpdate{
			Name:           t.Name,
			AdminOnly:      boolOrNil(t.AdminOnly),
			AuthKeyPattern: stringOrNil(t.AuthKeyPattern),
			NameField:      stringOrNil(t.NameField),
			Fields:         t.Fields,
		})
	}
	for _, t := range spec.ComponentTypes {
		update.ComponentTypes = append(update.ComponentTypes, schema.ComponentTypeSpecificationUpdate{
			Name:      t.Name,
			AdminOnly: boolOrNil(t.AdminOnly),
			Fields:    t.Fields,
		})
	}
	return update
}

func boolOrNil(b bool) *bool {
	if !b {
		return nil
	}
	return &b
}

func stringOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
