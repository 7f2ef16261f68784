package progress

import (
	"errors"
	"fmt"

	"github.com/starford/mdimport/internal/models"
)

// Invariant violations reported by Checker.
var (
	ErrProcessedDecreased = errors.New("progress: processed decreased")
	ErrProcessedOverTotal = errors.New("progress: processed exceeds total")
	ErrCountsMismatch     = errors.New("progress: processed != success+failed+skipped at completion")
)

// Checker validates a sequence of snapshots for one task.
type Checker struct {
	seen      bool
	processed int
}

// Observe checks p against the previous snapshot.
func (c *Checker) Observe(p models.ImportProgress) error {
	if c.seen && p.Processed < c.processed {
		return fmt.Errorf("%w: %d -> %d", ErrProcessedDecreased, c.processed, p.Processed)
	}
	c.seen = true
	c.processed = p.Processed

	if p.Processed > p.Total {
		return fmt.Errorf("%w: %d > %d", ErrProcessedOverTotal, p.Processed, p.Total)
	}
	if p.Status == models.StatusCompleted {
		if sum := p.Success + p.Failed + p.Skipped; sum != p.Processed {
			return fmt.Errorf("%w: %d != %d", ErrCountsMismatch, p.Processed, sum)
		}
	}
	return nil
}
