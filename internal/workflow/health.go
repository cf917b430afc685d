package workflow

// Collaborator names reported by Health.
const (
	StageGenerator     = "generator"
	StageRelevance     = "relevance"
	StageTranscription = "transcription"
)

// StageHealth summarizes the readiness of a pipeline collaborator.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// HealthyStage constructs a ready StageHealth record.
func HealthyStage(name string) StageHealth {
	return StageHealth{Name: name, Ready: true}
}

// UnhealthyStage constructs an unhealthy StageHealth record with context detail.
func UnhealthyStage(name, detail string) StageHealth {
	return StageHealth{Name: name, Ready: false, Detail: detail}
}
