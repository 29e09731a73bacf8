package model

// IngestEnvelope carries one raw log line with its source metadata.
// It is the transport contract between log sources and processing.
type IngestEnvelope struct {
	Source string
	Tag    SourceTag
	Line   string

	// Oversized marks a line that exceeded the source's maximum line size.
	// Its content was discarded and Line is empty.
	Oversized bool
}
