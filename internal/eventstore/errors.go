package eventstore

import (
	"github.com/open-filament/catalogbuilder/internal/foundation/errors"
)

// Sentinel errors for journal operations. Returned errors wrap the underlying
// cause but still match these with errors.Is.
var (
	ErrDatabaseOpenFailed     = errors.EventStoreError("could not open run journal database").Build()
	ErrInitializeSchemaFailed = errors.EventStoreError("failed to initialize run journal schema").Build()
	ErrEventAppendFailed      = errors.EventStoreError("failed to append event to run journal").Build()
	ErrEventQueryFailed       = errors.EventStoreError("failed to query run journal").Build()
	ErrEventScanFailed        = errors.EventStoreError("failed to scan run journal rows").Build()
	ErrMarshalPayloadFailed   = errors.EventStoreError("failed to marshal event payload").Build()
)

func wrap(sentinel *errors.ClassifiedError, cause error) error {
	return errors.WrapError(cause, sentinel.Category(), sentinel.Message()).Build()
}
