package client

import (
	"encoding/json"

	"strata/internal/domain"
	"strata/internal/paging"
	"strata/internal/schema"
)

// OperationName names one operation of the client contract
type OperationName string

const (
	OpGetEntity                 OperationName = "getEntity"
	OpGetEntities               OperationName = "getEntities"
	OpGetEntitiesTotalCount     OperationName = "getEntitiesTotalCount"
	OpSampleEntities            OperationName = "sampleEntities"
	OpCreateEntity              OperationName = "createEntity"
	OpUpdateEntity              OperationName = "updateEntity"
	OpUpsertEntity              OperationName = "upsertEntity"
	OpPublishEntities           OperationName = "publishEntities"
	OpUnpublishEntities         OperationName = "unpublishEntities"
	OpArchiveEntity             OperationName = "archiveEntity"
	OpUnarchiveEntity           OperationName = "unarchiveEntity"
	OpDeleteEntities            OperationName = "deleteEntities"
	OpGetSchemaSpecification    OperationName = "getSchemaSpecification"
	OpUpdateSchemaSpecification OperationName = "updateSchemaSpecification"
	OpGetChangelogEvents        OperationName = "getChangelogEvents"
	OpAcquireAdvisoryLock       OperationName = "acquireAdvisoryLock"
	OpRenewAdvisoryLock         OperationName = "renewAdvisoryLock"
	OpReleaseAdvisoryLock       OperationName = "releaseAdvisoryLock"
	OpProcessDirtyEntity        OperationName = "processDirtyEntity"
)

// Operations lists every operation name in contract order
var Operations = []OperationName{
	OpGetEntity, OpGetEntities, OpGetEntitiesTotalCount, OpSampleEntities,
	OpCreateEntity, OpUpdateEntity, OpUpsertEntity,
	OpPublishEntities, OpUnpublishEntities, OpArchiveEntity, OpUnarchiveEntity, OpDeleteEntities,
	OpGetSchemaSpecification, OpUpdateSchemaSpecification,
	OpGetChangelogEvents,
	OpAcquireAdvisoryLock, OpRenewAdvisoryLock, OpReleaseAdvisoryLock,
	OpProcessDirtyEntity,
}

// IsMutation returns true for operations that write
func (n OperationName) IsMutation() bool {
	switch n {
	case OpCreateEntity, OpUpdateEntity, OpUpsertEntity,
		OpPublishEntities, OpUnpublishEntities, OpArchiveEntity, OpUnarchiveEntity, OpDeleteEntities,
		OpUpdateSchemaSpecification, OpAcquireAdvisoryLock, OpRenewAdvisoryLock, OpReleaseAdvisoryLock,
		OpProcessDirtyEntity:
		return true
	}
	return false
}

// ============================================================================
// Operation Arguments
// ============================================================================

type GetEntityArgs struct {
	Lookup    domain.EntityLookup `json:"lookup"`
	Published bool                `json:"published,omitempty"`
}

type GetEntitiesArgs struct {
	Query     domain.EntityQuery `json:"query"`
	Paging    paging.Request     `json:"paging"`
	Published bool               `json:"published,omitempty"`
}

type GetEntitiesTotalCountArgs struct {
	Query     domain.EntityQuery `json:"query"`
	Published bool               `json:"published,omitempty"`
}

type SampleEntitiesArgs struct {
	Query     domain.EntityQuery           `json:"query"`
	Options   domain.EntitySamplingOptions `json:"options"`
	Published bool                         `json:"published,omitempty"`
}

type CreateEntityArgs struct {
	Entity  domain.EntityCreate          `json:"entity"`
	Options domain.EntityMutationOptions `json:"options"`
}

type UpdateEntityArgs struct {
	Entity  domain.EntityUpdate          `json:"entity"`
	Options domain.EntityMutationOptions `json:"options"`
}

// EntityReferencesArgs are the arguments of the batch status operations
type EntityReferencesArgs struct {
	References []domain.EntityVersionReference `json:"references"`
}

// EntityReferenceArgs are the arguments of archive and unarchive
type EntityReferenceArgs struct {
	Reference domain.EntityVersionReference `json:"reference"`
}

type GetSchemaSpecificationArgs struct {
	Published bool `json:"published,omitempty"`
}

type UpdateSchemaSpecificationArgs struct {
	Update schema.SpecificationUpdate `json:"update"`
}

type GetChangelogEventsArgs struct {
	Query  domain.ChangelogEventQuery `json:"query"`
	Paging paging.Request             `json:"paging"`
}

// AcquireAdvisoryLockArgs names a lock; the lease is in milliseconds and
// zero uses the default
type AcquireAdvisoryLockArgs struct {
	Name          string `json:"name"`
	LeaseDuration int64  `json:"leaseDuration,omitempty"`
}

// AdvisoryLockArgs identify a held lock
type AdvisoryLockArgs struct {
	Name   string `json:"name"`
	Handle string `json:"handle"`
}

type ProcessDirtyEntityArgs struct{}

// NewArgs returns a pointer to the zero arguments of an operation
func NewArgs(name OperationName) (any, error) {
	switch name {
	case OpGetEntity:
		return &GetEntityArgs{}, nil
	case OpGetEntities:
		return &GetEntitiesArgs{}, nil
	case OpGetEntitiesTotalCount:
		return &GetEntitiesTotalCountArgs{}, nil
	case OpSampleEntities:
		return &SampleEntitiesArgs{}, nil
	case OpCreateEntity, OpUpsertEntity:
		return &CreateEntityArgs{}, nil
	case OpUpdateEntity:
		return &UpdateEntityArgs{}, nil
	case OpPublishEntities, OpUnpublishEntities, OpDeleteEntities:
		return &EntityReferencesArgs{}, nil
	case OpArchiveEntity, OpUnarchiveEntity:
		return &EntityReferenceArgs{}, nil
	case OpGetSchemaSpecification:
		return &GetSchemaSpecificationArgs{}, nil
	case OpUpdateSchemaSpecification:
		return &UpdateSchemaSpecificationArgs{}, nil
	case OpGetChangelogEvents:
		return &GetChangelogEventsArgs{}, nil
	case OpAcquireAdvisoryLock:
		return &AcquireAdvisoryLockArgs{}, nil
	case OpRenewAdvisoryLock, OpReleaseAdvisoryLock:
		return &AdvisoryLockArgs{}, nil
	case OpProcessDirtyEntity:
		return &ProcessDirtyEntityArgs{}, nil
	}
	return nil, domain.BadRequest("unknown operation (%s)", name)
}

// DecodeArgs decodes JSON arguments for an operation. Empty input gives
// the zero arguments.
func DecodeArgs(name OperationName, data []byte) (any, error) {
	args, err := NewArgs(name)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return args, nil
	}
	if err := json.Unmarshal(data, args); err != nil {
		return nil, domain.BadRequest("invalid arguments for %s: %v", name, err)
	}
	return args, nil
}
