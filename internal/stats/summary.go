package stats

// Summary is an immutable picture of an Aggregator.
type Summary struct {
	Requests   uint64 `json:"requests"`
	Success    uint64 `json:"success"`
	Fail       uint64 `json:"fail"`
	Bytes      uint64 `json:"bytes"`
	Iterations uint64 `json:"iterations"`
	DataErrors uint64 `json:"data_errors"`
	Panics     uint64 `json:"panics"`

	Duration          Trend `json:"http_req_duration"`
	IterationDuration Trend `json:"iteration_duration"`

	Endpoints []EndpointSummary `json:"endpoints"`
	Checks    []CheckSummary    `json:"checks"`
}

type EndpointSummary struct {
	Name     string `json:"name"`
	Requests uint64 `json:"requests"`
	Fail     uint64 `json:"fail"`
	Bytes    uint64 `json:"bytes"`
	Duration Trend  `json:"duration"`
}

func (e EndpointSummary) FailRate() float64 {
	return rate(e.Fail, e.Requests)
}

type CheckSummary struct {
	Name   string `json:"name"`
	Passes uint64 `json:"passes"`
	Fails  uint64 `json:"fails"`
	Skips  uint64 `json:"skips"`
}

// PassRate ignores skipped evaluations.
func (c CheckSummary) PassRate() float64 {
	return rate(c.Passes, c.Passes+c.Fails)
}

// FailRate is the share of failed requests, 0..1.
func (s Summary) FailRate() float64 {
	return rate(s.Fail, s.Requests)
}

// CheckTotals adds up every check.
func (s Summary) CheckTotals() CheckSummary {
	total := CheckSummary{Name: "checks"}
	for _, c := range s.Checks {
		total.Passes += c.Passes
		total.Fails += c.Fails
		total.Skips += c.Skips
	}
	return total
}

func (s Summary) Endpoint(name string) (EndpointSummary, bool) {
	for _, e := range s.Endpoints {
		if e.Name == name {
			return e, true
		}
	}
	return EndpointSummary{}, false
}

func (s Summary) Check(name string) (CheckSummary, bool) {
	for _, c := range s.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return CheckSummary{}, false
}

func rate(n, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}
