package health

import (
	"context"
	"errors"
	"fmt"

	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/evidence"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/policy/card"
)

// PolicyCheck fails while no policy card is loaded.
func PolicyCheck(current func() *card.Document) CheckFunc {
	return func(ctx context.Context) error {
		doc := current()
		if doc == nil {
			return errors.New("no policy card loaded")
		}
		if doc.Name == "" {
			return errors.New("loaded policy card has no name")
		}
		return nil
	}
}

// StorageCheck fails when the evidence archive cannot answer a count query.
func StorageCheck(store evidence.Storage) CheckFunc {
	return func(ctx context.Context) error {
		if store == nil {
			return errors.New("evidence archive not configured")
		}
		if _, err := store.Count(ctx, &evidence.Query{Limit: 1}); err != nil {
			return fmt.Errorf("evidence archive unavailable: %w", err)
		}
		return nil
	}
}
