package models

// Answer is the terminal result of resolving a query: the text returned to
// the caller plus the labels of the sources that informed it. Every query
// produces an Answer, including the degraded and failed paths.
type Answer struct {
	Text    string   `json:"text"`
	Sources []string `json:"sources"`
}

// Source labels for answers produced without document context
const (
	// SourceNoVectorStore marks answers generated when the vector store was unavailable
	SourceNoVectorStore = "Direct response (no vector database)"
	// SourceNoDocuments marks answers generated when retrieval found nothing relevant
	SourceNoDocuments = "Direct response (no relevant documents)"
	// SourceError marks answers produced from a generation failure
	SourceError = "Error"
)
