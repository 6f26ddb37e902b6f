package state

// Update is the partial result of a node.
//
// Merge policy per field:
//   - Messages, AppendDocuments, ToolCalls: appended.
//   - VectorstoreSearched, WebSearched: sticky, only a true value is applied.
//   - pointer and map fields: replaced when non-nil.
type Update struct {
	Messages        []Message
	Documents       *[]Document
	AppendDocuments []Document
	ToolCalls       []ToolCall

	RetryCount *int

	VectorstoreSearched bool
	WebSearched         bool

	CrossReferenceAnalysis *CrossReference
	DocumentSources        map[SourceType][]Document
	CitationInfo           *[]Citation
	RoutingMemory          *RoutingMemory

	SummaryStrategy *string
	Generation      *string
	GenerationGrade *string
	Answer          *string
}

// Merge applies u to s and returns the new state. Slices are copied on append so
// earlier states observed by callers are never mutated.
func Merge(s GraphState, u Update) GraphState {
	if len(u.Messages) > 0 {
		s.Conversation = appendCopy(s.Conversation, u.Messages)
	}
	if u.Documents != nil {
		s.Documents = append([]Document(nil), (*u.Documents)...)
	}
	if len(u.AppendDocuments) > 0 {
		s.Documents = appendCopy(s.Documents, u.AppendDocuments)
	}
	if len(u.ToolCalls) > 0 {
		s.ToolCalls = appendCopy(s.ToolCalls, u.ToolCalls)
	}
	if u.RetryCount != nil {
		s.RetryCount = *u.RetryCount
	}
	if u.VectorstoreSearched {
		s.VectorstoreSearched = true
	}
	if u.WebSearched {
		s.WebSearched = true
	}
	if u.CrossReferenceAnalysis != nil {
		s.CrossReferenceAnalysis = u.CrossReferenceAnalysis
	}
	if u.DocumentSources != nil {
		s.DocumentSources = u.DocumentSources
	}
	if u.CitationInfo != nil {
		s.CitationInfo = append([]Citation(nil), (*u.CitationInfo)...)
	}
	if u.RoutingMemory != nil {
		rm := *u.RoutingMemory
		s.RoutingMemory = &rm
	}
	if u.SummaryStrategy != nil {
		s.SummaryStrategy = *u.SummaryStrategy
	}
	if u.Generation != nil {
		s.Generation = *u.Generation
	}
	if u.GenerationGrade != nil {
		s.GenerationGrade = *u.GenerationGrade
	}
	if u.Answer != nil {
		s.Answer = *u.Answer
	}
	return s
}

func appendCopy[T any](dst, src []T) []T {
	out := make([]T, 0, len(dst)+len(src))
	out = append(out, dst...)
	return append(out, src...)
}

// Ref returns a pointer to v, for building updates inline.
func Ref[T any](v T) *T {
	return &v
}
