package scrape

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kalambet/bidfetch/internal/extract"
	"github.com/kalambet/bidfetch/internal/storage"
)

// FetchMessages stores the message rows received on dateToken (M/D/YY)
// together with the body of each message's detail popup. A row whose popup
// cannot be read is still stored, without details, and reported as failed.
func (o *Orchestrator) FetchMessages(ctx context.Context, dateToken string) (results []Result, err error) {
	defer func() { o.finish(err) }()

	if err := o.start(ctx); err != nil {
		return nil, err
	}

	o.obs.Step(StateListing, "", "Opening messages")
	snap, err := o.session.GotoMessages(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening messages: %w", err)
	}
	msgs, err := extract.Messages(snap.HTML, extract.DatePrefix(dateToken), o.opts.MessageLimit)
	if err != nil {
		return nil, err
	}
	o.logger.Info("messages found", "date", dateToken, "count", len(msgs))

	for i, m := range msgs {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		o.obs.Step(StateFetching, m.RefNumber, progress("Reading message", m.RefNumber, i, len(msgs)))

		spanCtx, span := tracer.Start(ctx, "scrape.message", trace.WithAttributes(
			attribute.String("ref_number", m.RefNumber),
			attribute.String("run_id", o.opts.RunID),
		))
		res := o.fetchMessage(spanCtx, m)
		if res.Status == StatusFailed {
			span.SetStatus(codes.Error, res.Error)
		}
		span.End()

		results = o.record(results, res)
	}
	return results, nil
}

func (o *Orchestrator) fetchMessage(ctx context.Context, m storage.Message) Result {
	res := Result{Identifier: m.RefNumber, Status: StatusSuccess}

	details, detailErr := o.messageDetail(ctx, m.RefNumber)
	m.FullDetails = details
	if detailErr != nil {
		o.logger.Warn("message detail unavailable", "ref_number", m.RefNumber, "error", detailErr)
		res.Status = StatusFailed
		res.Error = detailErr.Error()
	}

	if err := o.store.SaveMessage(m); err != nil {
		res.Status = StatusFailed
		res.Error = err.Error()
	}
	return res
}

func (o *Orchestrator) messageDetail(ctx context.Context, refNumber string) (string, error) {
	popup, err := o.session.OpenMessageDetail(ctx, refNumber)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := popup.Close(); err != nil {
			o.logger.Debug("closing message popup", "error", err)
		}
	}()

	html, err := popup.HTML()
	if err != nil {
		return "", fmt.Errorf("reading message popup: %w", err)
	}
	return extract.MessageDetail(html)
}
