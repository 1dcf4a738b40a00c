package scoring

// Dimension maxima. They sum to 100.
const (
	MaxCompleteness  = 15.0
	MaxCorrectness   = 30.0
	MaxRobustness    = 15.0
	MaxEfficiency    = 15.0
	MaxDataQuality   = 15.0
	MaxObservability = 10.0
	MaxTotal         = 100.0
)

// CorrectnessGate is the fraction of MaxCorrectness below which efficiency
// and observability are halved.
const CorrectnessGate = 0.7

// Gate names reported in Result details.
const (
	GateIncomplete     = "completeness_below_max"
	GateLowCorrectness = "correctness_below_70pct"
)

// Breakdown holds the six sub-scores. It is a value type; gating produces a
// new Breakdown instead of mutating one.
type Breakdown struct {
	Completeness  float64 `json:"completeness"`
	Correctness   float64 `json:"correctness"`
	Robustness    float64 `json:"robustness"`
	Efficiency    float64 `json:"efficiency"`
	DataQuality   float64 `json:"data_quality"`
	Observability float64 `json:"observability"`
}

// Sum returns the clamped total.
func (b Breakdown) Sum() float64 {
	total := b.Completeness + b.Correctness + b.Robustness + b.Efficiency + b.DataQuality + b.Observability
	return clamp(total, 0, MaxTotal)
}

// Gate applies the cross-dimension rules to a pre-gate breakdown:
// incomplete output forfeits efficiency, and correctness under the gate
// halves efficiency and observability.
func Gate(pre Breakdown) Breakdown {
	post := pre
	if pre.Completeness < MaxCompleteness {
		post.Efficiency = 0
	}
	if pre.Correctness < CorrectnessGate*MaxCorrectness {
		post.Efficiency = min(post.Efficiency, pre.Efficiency*0.5)
		post.Observability = min(post.Observability, pre.Observability*0.5)
	}
	return post
}

// Gates lists the gates that fire for pre, in application order.
func Gates(pre Breakdown) []string {
	gates := []string{}
	if pre.Completeness < MaxCompleteness {
		gates = append(gates, GateIncomplete)
	}
	if pre.Correctness < CorrectnessGate*MaxCorrectness {
		gates = append(gates, GateLowCorrectness)
	}
	return gates
}

func clamp(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}
