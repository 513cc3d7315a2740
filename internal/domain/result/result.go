package result

// Kind discriminates the processor outcome for one entity.
type Kind string

const (
	KindSuccess Kind = "success"
	KindSkipped Kind = "skipped"
	KindError   Kind = "error"
)

// SkipReason explains a skipped outcome.
type SkipReason string

const (
	// SkipIdempotent means a previous run stored the same content hash.
	SkipIdempotent SkipReason = "idempotent"
	// SkipDependencies means every dependency was skipped for the entity.
	SkipDependencies SkipReason = "dependencies-skipped"
)

// Result is the per-entity outcome of one processor.
type Result struct {
	EntityID string
	Kind     Kind
	Data     any
	Reason   SkipReason
	Message  string
}

// NewSuccess creates a success result carrying the processor output.
func NewSuccess(entityID string, data any) Result {
	return Result{EntityID: entityID, Kind: KindSuccess, Data: data}
}

// NewSkipped creates a skipped result.
func NewSkipped(entityID string, reason SkipReason) Result {
	return Result{EntityID: entityID, Kind: KindSkipped, Reason: reason}
}

// NewError creates an error result. A nil err yields an empty message.
func NewError(entityID string, err error) Result {
	r := Result{EntityID: entityID, Kind: KindError}
	if err != nil {
		r.Message = err.Error()
	}
	return r
}

// IsSuccess reports whether the processor produced output.
func (r Result) IsSuccess() bool { return r.Kind == KindSuccess }

// IsSkipped reports whether the processor was skipped.
func (r Result) IsSkipped() bool { return r.Kind == KindSkipped }

// IsError reports whether the processor failed.
func (r Result) IsError() bool { return r.Kind == KindError }
