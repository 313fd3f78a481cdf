package stats

// The pipeline is strictly sequential, so events are applied to the collector
// directly as stages run; there is no fan-out.

type Stage string

const (
	StageList    Stage = "list"
	StageHeaders Stage = "headers"
	StageFilter  Stage = "filter"
	StageDedup   Stage = "dedup"
	StageBodies  Stage = "bodies"
	StageExtract Stage = "extract"
	StageWrite   Stage = "write"
	StagePersist Stage = "persist"
)

type EventType string

const (
	EventTypeListed              EventType = "listed"
	EventTypeFilteredOut         EventType = "filtered_out"
	EventTypeDuplicate           EventType = "duplicate"
	EventTypeBodyFetched         EventType = "body_fetched"
	EventTypeNoAttachment        EventType = "no_attachment"
	EventTypeExtracted           EventType = "extracted"
	EventTypeDuplicateAttachment EventType = "duplicate_attachment"
	EventTypeFileWritten         EventType = "file_written"
	EventTypeFileSkipped         EventType = "file_skipped"
	EventTypePersisted           EventType = "persisted"
	EventTypeError               EventType = "error"
)

type Event struct {
	Stage  Stage
	Type   EventType
	Hash   string
	Err    error
	Detail string
}

type Summary struct {
	Listed               int
	FilteredOut          int
	DuplicateMessages    int
	BodiesFetched        int
	NoAttachment         int
	Attachments          int
	DuplicateAttachments int
	FilesWritten         int
	FilesSkipped         int
	Persisted            int
	Errors               int
	LastError            error
}

func (s Summary) LogAttrs() []any {
	attrs := []any{
		"listed", s.Listed,
		"filteredOut", s.FilteredOut,
		"duplicateMessages", s.DuplicateMessages,
		"bodiesFetched", s.BodiesFetched,
		"noAttachment", s.NoAttachment,
		"attachments", s.Attachments,
		"duplicateAttachments", s.DuplicateAttachments,
		"filesWritten", s.FilesWritten,
		"filesSkipped", s.FilesSkipped,
		"persisted", s.Persisted,
		"errors", s.Errors,
	}
	if s.LastError != nil {
		attrs = append(attrs, "lastError", s.LastError.Error())
	}
	return attrs
}

type Collector struct {
	summary Summary
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Apply(evt Event) {
	switch evt.Type {
	case EventTypeListed:
		c.summary.Listed++
	case EventTypeFilteredOut:
		c.summary.FilteredOut++
	case EventTypeDuplicate:
		c.summary.DuplicateMessages++
	case EventTypeBodyFetched:
		c.summary.BodiesFetched++
	case EventTypeNoAttachment:
		c.summary.NoAttachment++
	case EventTypeExtracted:
		c.summary.Attachments++
	case EventTypeDuplicateAttachment:
		c.summary.DuplicateAttachments++
	case EventTypeFileWritten:
		c.summary.FilesWritten++
	case EventTypeFileSkipped:
		c.summary.FilesSkipped++
	case EventTypePersisted:
		c.summary.Persisted++
	case EventTypeError:
		c.summary.Errors++
		if evt.Err != nil {
			c.summary.LastError = evt.Err
		}
	}
}

func (c *Collector) Summary() Summary {
	return c.summary
}
