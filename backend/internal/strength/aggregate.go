package strength

import "math"

// Aggregate summarizes every paper's strength for one Theory to Phenomenon
// pair. PaperIDs and Strengths are parallel; each paper contributes once.
type Aggregate struct {
	Count     int       `json:"count"`
	Sum       float64   `json:"sum"`
	SumSq     float64   `json:"sum_sq"`
	Min       float64   `json:"min"`
	Max       float64   `json:"max"`
	PaperIDs  []string  `json:"paper_ids"`
	Strengths []float64 `json:"strengths"`
}

// Apply folds one paper's strength into the aggregate. A paper already
// counted has its previous contribution replaced, so re-ingesting a paper
// never double counts.
func (a *Aggregate) Apply(paperID string, strength float64) {
	for i, id := range a.PaperIDs {
		if id == paperID {
			if a.Strengths[i] == strength {
				return
			}
			a.Strengths[i] = strength
			a.recompute()
			return
		}
	}

	a.PaperIDs = append(a.PaperIDs, paperID)
	a.Strengths = append(a.Strengths, strength)
	if a.Count == 0 {
		a.Min, a.Max = strength, strength
	} else {
		a.Min = math.Min(a.Min, strength)
		a.Max = math.Max(a.Max, strength)
	}
	a.Count++
	a.Sum += strength
	a.SumSq += strength * strength
}

func (a *Aggregate) recompute() {
	a.Count, a.Sum, a.SumSq = 0, 0, 0
	for i, s := range a.Strengths {
		if i == 0 {
			a.Min, a.Max = s, s
		}
		a.Min = math.Min(a.Min, s)
		a.Max = math.Max(a.Max, s)
		a.Count++
		a.Sum += s
		a.SumSq += s * s
	}
}

// Avg returns the mean strength, or 0 for an empty aggregate.
func (a *Aggregate) Avg() float64 {
	if a.Count == 0 {
		return 0
	}
	return a.Sum / float64(a.Count)
}

// StdDev returns the population standard deviation.
func (a *Aggregate) StdDev() float64 {
	if a.Count == 0 {
		return 0
	}
	mean := a.Avg()
	v := a.SumSq/float64(a.Count) - mean*mean
	if v < 0 {
		v = 0
	}
	return math.Sqrt(v)
}
