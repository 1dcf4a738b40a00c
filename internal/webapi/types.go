package webapi

import (
	"time"

	"github.com/comtradebench/greenbench/internal/scoring"
)

// AgentName and Version identify the green agent in its cards.
const AgentName = "green-comtrade-bench"

// Version is set at build time or defaults to the released card version.
var Version = "0.1.0"

// AgentCard is the A2A discovery document.
type AgentCard struct {
	Name               string            `json:"name"`
	Version            string            `json:"version"`
	Description        string            `json:"description"`
	URL                string            `json:"url"`
	Endpoints          map[string]string `json:"endpoints"`
	Capabilities       Capabilities      `json:"capabilities"`
	DefaultInputModes  []string          `json:"defaultInputModes"`
	DefaultOutputModes []string          `json:"defaultOutputModes"`
	Skills             []Skill           `json:"skills"`
}

// Capabilities advertises optional A2A features.
type Capabilities struct {
	Streaming         bool `json:"streaming"`
	PushNotifications bool `json:"pushNotifications"`
}

// Skill is one advertised agent skill.
type Skill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// LegacyCard is served on /agent-card for clients predating A2A discovery.
type LegacyCard struct {
	Name      string            `json:"name"`
	Version   string            `json:"version"`
	Endpoints map[string]string `json:"endpoints"`
}

// NewAgentCard builds the card advertising rpcURL as the A2A endpoint.
func NewAgentCard(rpcURL string) AgentCard {
	return AgentCard{
		Name:               AgentName,
		Version:            Version,
		Description:        "Green Agent benchmark for Comtrade API evaluation",
		URL:                rpcURL,
		Endpoints:          map[string]string{"rpc": "/a2a/rpc", "health": "/healthz"},
		DefaultInputModes:  []string{"application/json"},
		DefaultOutputModes: []string{"application/json"},
		Skills: []Skill{{
			ID:          "a2a.rpc",
			Name:        "a2a.rpc",
			Description: "Handle A2A JSON-RPC requests via /a2a/rpc",
			Tags:        []string{"a2a", "rpc"},
		}},
	}
}

// AssessResponse is the /assess response body.
type AssessResponse struct {
	TaskID         string            `json:"task_id"`
	ScoreTotal     float64           `json:"score_total"`
	ScoreBreakdown scoring.Breakdown `json:"score_breakdown"`
	Errors         []string          `json:"errors"`
	Details        map[string]any    `json:"details"`
	AssessmentID   string            `json:"assessment_id,omitempty"`
}

// AssessmentSummary is one entry of GET /api/assessments.
type AssessmentSummary struct {
	ID         string    `json:"id"`
	TaskID     string    `json:"task_id"`
	ScoreTotal float64   `json:"score_total"`
	Errors     int       `json:"errors"`
	DurationMS int64     `json:"duration_ms"`
	StartedAt  time.Time `json:"started_at"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is returned for errors. Detail mirrors Error for clients
// that read the detail key.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
	Code   int    `json:"code"`
}
