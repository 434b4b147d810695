package report

import (
	"context"
	"errors"

	"github.com/pendergraft/deployer/internal/deployments/domain"
)

// Multi writes a record to every sink, in order. One failing sink does not
// stop the others; their errors are joined.
type Multi []domain.Sink

// Write fans the record out.
func (m Multi) Write(ctx context.Context, record *domain.Record) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Write(ctx, record); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
