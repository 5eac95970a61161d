package router

import "github.com/google/uuid"

// Method names the path that produced a decision.
type Method string

const (
	MethodFast        Method = "fast"
	MethodLLMFallback Method = "llm_fallback"
)

// Metadata keys carried by Decision.Metadata.
const (
	MetaFastConfidence   = "fast_confidence"
	MetaFastCategory     = "fast_category"
	MetaMatchedKeywords  = "matched_keywords"
	MetaParamCount       = "param_count"
	MetaIntent           = "intent"
	MetaProvider         = "provider"
	MetaModel            = "model"
	MetaSkippedProviders = "skipped_providers"
	MetaDroppedProviders = "dropped_providers"
	MetaNormalizedQuery  = "normalized_query"
	MetaLocale           = "locale"
)

// Decision captures routing decision details. It is produced once per query
// and not modified after Route returns it.
type Decision struct {
	ID         string         `json:"id"`
	Target     Category       `json:"target"`
	Confidence float64        `json:"confidence"`
	Method     Method         `json:"method"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func newDecision(target Category, confidence float64, method Method) Decision {
	return Decision{
		ID:         uuid.NewString(),
		Target:     target,
		Confidence: confidence,
		Method:     method,
		Metadata:   make(map[string]any),
	}
}

// Meta returns the metadata value for key, or nil.
func (d Decision) Meta(key string) any {
	if d.Metadata == nil {
		return nil
	}
	return d.Metadata[key]
}
