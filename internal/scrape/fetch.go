package scrape

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kalambet/bidfetch/internal/extract"
	"github.com/kalambet/bidfetch/internal/portal"
)

// FetchAll captures header and line items for each PO number in order.
// Per-PO failures become failed results. A launch or login failure stops
// the batch and is returned along with the results gathered so far.
func (o *Orchestrator) FetchAll(ctx context.Context, poNumbers []string) (results []Result, err error) {
	defer func() { o.finish(err) }()

	if err := o.start(ctx); err != nil {
		return nil, err
	}
	return o.eachPO(ctx, poNumbers, StateFetching, "Fetching", func(ctx context.Context, po string) Result {
		res := Result{Identifier: po, Status: StatusSuccess}
		_, n, err := o.capture(ctx, po, true)
		res.ItemsFound = n
		if err != nil {
			res.Status = StatusFailed
			res.Error = err.Error()
		}
		return res
	})
}

// eachPO walks poNumbers from the list view. The list view is restored
// before every PO after the first since the detail view replaces it.
func (o *Orchestrator) eachPO(ctx context.Context, poNumbers []string, state State, verb string, run func(context.Context, string) Result) ([]Result, error) {
	o.obs.Step(StateListing, "", "Opening purchase order list")
	listErr := o.session.GotoListView(ctx)

	var results []Result
	for i, po := range poNumbers {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		o.obs.Step(state, po, progress(verb, po, i, len(poNumbers)))

		if i > 0 {
			listErr = o.session.GotoListView(ctx)
		}
		if listErr != nil {
			if portal.IsBatchFatal(listErr) {
				return results, listErr
			}
			o.logger.Warn("list view unavailable", "po_number", po, "error", listErr)
			results = o.record(results, Result{Identifier: po, Status: StatusFailed, Error: listErr.Error()})
			continue
		}

		spanCtx, span := tracer.Start(ctx, "scrape."+string(state), trace.WithAttributes(
			attribute.String("po_number", po),
			attribute.String("run_id", o.opts.RunID),
		))
		res := run(spanCtx, po)
		if res.Status == StatusFailed {
			span.RecordError(errors.New(res.Error))
			span.SetStatus(codes.Error, res.Error)
			o.logger.Warn("po failed", "po_number", po, "error", res.Error)
		} else {
			o.logger.Info("po processed", "po_number", po, "status", res.Status, "items", res.ItemsFound)
		}
		span.End()

		results = o.record(results, res)
	}
	return results, nil
}

// capture searches the list for po, loads its detail page and stores the
// header and line items. With strict unset, extraction and persistence
// failures are logged and the detail snapshot is still returned.
func (o *Orchestrator) capture(ctx context.Context, po string, strict bool) (portal.Snapshot, int, error) {
	list, err := o.session.SearchList(ctx, po)
	if err != nil {
		return portal.Snapshot{}, 0, fmt.Errorf("searching list: %w", err)
	}
	row, err := extract.FindListRow(list.HTML, po)
	if err != nil {
		o.logger.Debug("list row unreadable", "po_number", po, "error", err)
		row = nil
	}

	detail, err := o.session.GotoDetailView(ctx, po)
	if err != nil {
		return portal.Snapshot{}, 0, err
	}

	header, err := extract.Header(detail.HTML, po, row)
	if err == nil {
		err = o.store.SavePOHeader(header)
	}
	if err != nil {
		if strict {
			return detail, 0, err
		}
		o.logger.Warn("header not saved", "po_number", po, "error", err)
	}

	items, err := extract.LineItems(detail.HTML, po)
	if err == nil {
		err = o.store.AddLineItems(items)
	}
	if err != nil {
		if strict {
			return detail, 0, err
		}
		o.logger.Warn("line items not saved", "po_number", po, "error", err)
		return detail, 0, nil
	}
	for _, it := range items {
		if _, err := o.store.RegisterItemNumber(it.ItemNumber); err != nil {
			o.logger.Warn("registering item number", "item_number", it.ItemNumber, "error", err)
		}
	}
	return detail, len(items), nil
}
