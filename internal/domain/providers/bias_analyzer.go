package providers

import "context"

// AnalysisOutcome is one detector verdict over a PALD payload.
type AnalysisOutcome struct {
	BiasDetected    bool
	ConfidenceScore float64
	BiasIndicators  map[string]any
	AnalysisDetails map[string]any
}

// BiasAnalyzer runs one analysis type over a PALD payload. Implementations
// report detector-level problems inside AnalysisDetails; an error return is
// reserved for infrastructure failures and triggers the job retry path.
type BiasAnalyzer interface {
	Analyze(ctx context.Context, paldData map[string]any, analysisType string) (*AnalysisOutcome, error)
}
