package processor

import (
	"context"
	"encoding/json"
	"fmt"

	"autotrader/internal/core"
)

// Handler is an injected collaborator for work item types whose semantics
// live outside the execution core (strategy evaluation, portfolio-driven
// position closes).
type Handler func(ctx context.Context, payload json.RawMessage) (string, error)

// Delegate adapts a Handler to the queue's Processor interface so delegated
// types still get the full retry, backoff and dead-letter treatment.
type Delegate struct {
	typ     core.WorkItemType
	handler Handler
}

// NewDelegate creates a processor for typ backed by handler
func NewDelegate(typ core.WorkItemType, handler Handler) *Delegate {
	return &Delegate{typ: typ, handler: handler}
}

func (p *Delegate) Type() core.WorkItemType { return p.typ }

func (p *Delegate) Process(ctx context.Context, item *core.WorkItem) (string, error) {
	if p.handler == nil {
		return "", fmt.Errorf("no handler configured for %s", p.typ)
	}
	return p.handler(ctx, item.Payload)
}
