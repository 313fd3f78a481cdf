package pipeline

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sheetpoll/sheetpoll/allowlist"
	"github.com/sheetpoll/sheetpoll/dedup"
	"github.com/sheetpoll/sheetpoll/extract"
	"github.com/sheetpoll/sheetpoll/headers"
	"github.com/sheetpoll/sheetpoll/ledger"
	"github.com/sheetpoll/sheetpoll/model"
	"github.com/sheetpoll/sheetpoll/output"
	"github.com/sheetpoll/sheetpoll/progress"
	"github.com/sheetpoll/sheetpoll/stats"
	"github.com/sheetpoll/sheetpoll/transport"
)

// Options configures one pipeline instance.
type Options struct {
	AllowList    allowlist.AllowList
	HeaderFilter []string
	Store        *ledger.Store

	// Output directories are only created once the run has something to
	// write; an empty run never touches them.
	EmailDir      string
	AttachmentDir string

	// WriteDuplicateAttachments controls whether the bytes of an attachment
	// flagged as a duplicate are still written to the output area. The record
	// is created either way.
	WriteDuplicateAttachments bool
	DryRun                    bool
	LogLevel                  string
}

// Batch is the working set of one run, passed from stage to stage as an
// explicit value. Stages take a batch and return the surviving subset; no
// stage starts before the previous one has produced its complete output.
type Batch struct {
	Messages []*model.Message
}

func (b Batch) Empty() bool {
	return len(b.Messages) == 0
}

// Pipeline sequences the retrieval-filter-dedup-extract run. It is strictly
// single-threaded; a run either completes or aborts without merging the
// ledger, and re-running is always safe because survivorship and output
// writes are keyed by content hash.
type Pipeline struct {
	opts      Options
	filter    *allowlist.Filter
	collector *stats.Collector
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Pipeline.
func New(opts Options, logger *slog.Logger) (*Pipeline, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("ledger store must not be nil")
	}
	if (opts.EmailDir == "" || opts.AttachmentDir == "") && !opts.DryRun {
		return nil, fmt.Errorf("output directories must not be empty")
	}
	return &Pipeline{
		opts:      opts,
		filter:    allowlist.New(opts.AllowList),
		collector: stats.NewCollector(),
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Run executes the full stage sequence against one mailbox session. The
// transport is closed as soon as all bodies are fetched, before any
// filesystem or ledger work, and is guaranteed to be released even when the
// run aborts early.
func (p *Pipeline) Run(session transport.Transport) (stats.Summary, error) {
	started := p.now()
	logger := p.logger.With("runID", uuid.NewString())

	closed := false
	defer func() {
		if !closed {
			_ = session.Close()
		}
	}()

	snapshot := p.opts.Store.Load()
	deduper := dedup.NewDeduper(snapshot.MessageHashes(), snapshot.AttachmentHashes())
	logger.Debug("ledger snapshot loaded", "entries", len(snapshot))

	batch, err := p.list(session)
	if err != nil {
		return p.fail(logger, err)
	}

	bar := progress.New(len(batch.Messages), p.opts.LogLevel)
	batch, err = p.fetchHeaders(session, batch, bar)
	if err != nil {
		bar.Finish()
		return p.fail(logger, err)
	}

	batch = p.allowFilter(batch)
	batch = p.dedupMessages(batch, deduper)
	batch = p.projectHeaders(batch)

	batch, err = p.fetchBodies(session, batch)
	bar.Finish()
	if err != nil {
		return p.fail(logger, err)
	}

	// All network work is done; release the connection before touching the
	// filesystem or the ledger.
	closed = true
	if err := session.Close(); err != nil {
		logger.Warn("closing mailbox session failed", "err", err)
	}

	if batch.Empty() {
		return p.finish(logger, started, "nothing new to process")
	}

	batch = p.extractAttachments(batch, deduper)
	if batch.Empty() {
		return p.finish(logger, started, "no qualifying attachments")
	}

	batch = rekeyByHash(batch)

	if err := p.writeFiles(batch, logger); err != nil {
		return p.fail(logger, err)
	}

	entries := p.buildSummary(batch)
	if p.opts.DryRun {
		logger.Info("dry run, ledger not persisted", "newEntries", len(entries))
		return p.finish(logger, started, "dry run")
	}

	snapshot.Merge(entries)
	if err := p.opts.Store.Persist(snapshot); err != nil {
		return p.fail(logger, err)
	}
	for range entries {
		p.collector.Apply(stats.Event{Stage: stats.StagePersist, Type: stats.EventTypePersisted})
	}

	return p.finish(logger, started, "completed")
}

func (p *Pipeline) list(session transport.Transport) (Batch, error) {
	listings, err := session.ListMessages()
	if err != nil {
		return Batch{}, fmt.Errorf("list messages: %w", err)
	}

	batch := Batch{Messages: make([]*model.Message, 0, len(listings))}
	for _, listing := range listings {
		batch.Messages = append(batch.Messages, &model.Message{
			Seq:  listing.Seq,
			Size: listing.Size,
		})
		p.collector.Apply(stats.Event{Stage: stats.StageList, Type: stats.EventTypeListed})
	}
	return batch, nil
}

func (p *Pipeline) fetchHeaders(session transport.Transport, batch Batch, bar *progress.Bar) (Batch, error) {
	for _, msg := range batch.Messages {
		header, err := session.FetchHeader(msg.Seq)
		if err != nil {
			return Batch{}, fmt.Errorf("fetch header %d: %w", msg.Seq, err)
		}
		msg.RawHeader = header
		bar.Increment()
	}
	return batch, nil
}

func (p *Pipeline) allowFilter(batch Batch) Batch {
	kept := Batch{}
	for _, msg := range batch.Messages {
		if !p.filter.Matches(msg.RawHeader) {
			p.collector.Apply(stats.Event{Stage: stats.StageFilter, Type: stats.EventTypeFilteredOut})
			continue
		}
		kept.Messages = append(kept.Messages, msg)
	}
	return kept
}

// dedupMessages computes each survivor's content hash and drops known
// duplicates before any body is fetched; fetching bodies for messages the
// ledger already has would be wasted transfer.
func (p *Pipeline) dedupMessages(batch Batch, deduper *dedup.Deduper) Batch {
	kept := Batch{}
	for _, msg := range batch.Messages {
		msg.Hash = dedup.MessageHash(msg.RawHeader)
		if res := deduper.CheckMessage(msg.Hash); res.Duplicate() {
			msg.Duplicate = true
			p.collector.Apply(stats.Event{Stage: stats.StageDedup, Type: stats.EventTypeDuplicate, Hash: msg.Hash})
			continue
		}
		kept.Messages = append(kept.Messages, msg)
	}
	return kept
}

func (p *Pipeline) projectHeaders(batch Batch) Batch {
	for _, msg := range batch.Messages {
		msg.ProjectedHeader = headers.Project(msg.RawHeader, p.opts.HeaderFilter)
	}
	return batch
}

// fetchBodies retrieves full payloads for the survivors and applies the cheap
// attachment pre-check, so messages without any disposition marker never
// reach the full extraction scan.
func (p *Pipeline) fetchBodies(session transport.Transport, batch Batch) (Batch, error) {
	kept := Batch{}
	for _, msg := range batch.Messages {
		body, err := session.FetchBody(msg.Seq)
		if err != nil {
			return Batch{}, fmt.Errorf("fetch body %d: %w", msg.Seq, err)
		}
		msg.RawBody = body
		p.collector.Apply(stats.Event{Stage: stats.StageBodies, Type: stats.EventTypeBodyFetched, Hash: msg.Hash})

		if !extract.HasAttachmentMarker(body) {
			p.collector.Apply(stats.Event{Stage: stats.StageBodies, Type: stats.EventTypeNoAttachment, Hash: msg.Hash})
			continue
		}
		kept.Messages = append(kept.Messages, msg)
	}
	return kept, nil
}

func (p *Pipeline) extractAttachments(batch Batch, deduper *dedup.Deduper) Batch {
	kept := Batch{}
	for _, msg := range batch.Messages {
		msg.Attachments = extract.Extract(msg.RawBody, deduper)
		if len(msg.Attachments) == 0 {
			p.collector.Apply(stats.Event{Stage: stats.StageExtract, Type: stats.EventTypeNoAttachment, Hash: msg.Hash})
			continue
		}
		for _, att := range msg.Attachments {
			p.collector.Apply(stats.Event{Stage: stats.StageExtract, Type: stats.EventTypeExtracted, Hash: att.Hash})
			if att.DuplicateOf != "" {
				p.collector.Apply(stats.Event{Stage: stats.StageExtract, Type: stats.EventTypeDuplicateAttachment, Hash: att.Hash})
			}
		}
		kept.Messages = append(kept.Messages, msg)
	}
	return kept
}

// rekeyByHash collapses the batch onto message hashes. Collisions within one
// run are not expected, but when they occur the last message wins.
func rekeyByHash(batch Batch) Batch {
	index := make(map[string]int, len(batch.Messages))
	kept := Batch{}
	for _, msg := range batch.Messages {
		if i, seen := index[msg.Hash]; seen {
			kept.Messages[i] = msg
			continue
		}
		index[msg.Hash] = len(kept.Messages)
		kept.Messages = append(kept.Messages, msg)
	}
	return kept
}

func (p *Pipeline) writeFiles(batch Batch, logger *slog.Logger) error {
	if p.opts.DryRun {
		return nil
	}

	writer, err := output.NewWriter(p.opts.EmailDir, p.opts.AttachmentDir)
	if err != nil {
		return err
	}

	for _, msg := range batch.Messages {
		written, err := writer.WriteMessage(msg.Hash, msg.RawBody)
		if err != nil {
			return err
		}
		p.applyWriteEvent(written)

		for _, att := range msg.Attachments {
			if att.DuplicateOf != "" && !p.opts.WriteDuplicateAttachments {
				p.collector.Apply(stats.Event{Stage: stats.StageWrite, Type: stats.EventTypeFileSkipped, Hash: att.Hash})
				logger.Debug("duplicate attachment bytes not written", "filename", att.Filename, "duplicateOf", att.DuplicateOf)
				continue
			}
			written, err := writer.WriteAttachment(att)
			if err != nil {
				return err
			}
			p.applyWriteEvent(written)
		}
	}
	return nil
}

func (p *Pipeline) applyWriteEvent(written bool) {
	evtType := stats.EventTypeFileWritten
	if !written {
		evtType = stats.EventTypeFileSkipped
	}
	p.collector.Apply(stats.Event{Stage: stats.StageWrite, Type: evtType})
}

func (p *Pipeline) buildSummary(batch Batch) ledger.Ledger {
	entries := ledger.Ledger{}
	for _, msg := range batch.Messages {
		msg.Info = headers.ExtractInfo(msg.RawBody, p.now())

		records := make(map[string]ledger.AttachmentRecord, len(msg.Attachments))
		for hash, att := range msg.Attachments {
			records[hash] = ledger.AttachmentRecord{
				OriginalFilename: att.OriginalFilename,
				Filename:         att.Filename,
				Extension:        att.Extension,
				MimeType:         att.MimeType,
				SizeBytes:        att.Size,
				Status:           att.Status,
				DuplicateOf:      att.DuplicateOf,
			}
		}

		entries[msg.Hash] = ledger.Entry{
			From:        msg.Info.From,
			To:          msg.Info.To,
			Subject:     msg.Info.Subject,
			Date:        msg.Info.Date,
			ReadAt:      msg.Info.ReadAt,
			Attachments: records,
		}
	}
	return entries
}

func (p *Pipeline) fail(logger *slog.Logger, err error) (stats.Summary, error) {
	p.collector.Apply(stats.Event{Type: stats.EventTypeError, Err: err})
	summary := p.collector.Summary()
	logger.Error("run failed", append(summary.LogAttrs(), "err", err)...)
	return summary, err
}

func (p *Pipeline) finish(logger *slog.Logger, started time.Time, outcome string) (stats.Summary, error) {
	summary := p.collector.Summary()
	attrs := append(summary.LogAttrs(), "outcome", outcome, "duration", p.now().Sub(started))
	logger.Info("run finished", attrs...)
	return summary, nil
}
