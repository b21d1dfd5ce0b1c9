package api

import "github.com/khanhnv2901/headerscope/internal/checker"

type AnalyzeRequest struct {
	URL string `json:"url"`
}

type HeaderFinding struct {
	Header  string  `json:"header"`
	Label   string  `json:"label"`
	Present bool    `json:"present"`
	Value   string  `json:"value"`
	RiskMsg *string `json:"risk_msg"`
}

type AnalyzeResponse struct {
	Target          string          `json:"target"`
	Score           int             `json:"score"`
	HeadersAnalyzed []HeaderFinding `json:"headers_analyzed"`
	Recommendations []string        `json:"recommendations"`
	WAFSuspected    bool            `json:"waf_suspected"`
	StatusCode      int             `json:"status_code"`
}

// NewAnalyzeResponse converts an assessment to its wire format. risk_msg is
// null for present headers.
func NewAnalyzeResponse(a *checker.Assessment) AnalyzeResponse {
	resp := AnalyzeResponse{
		Target:          a.Target,
		Score:           a.Score,
		HeadersAnalyzed: make([]HeaderFinding, 0, len(a.Findings)),
		Recommendations: append([]string{}, a.Recommendations...),
		WAFSuspected:    a.WAFSuspected,
		StatusCode:      a.StatusCode,
	}
	for _, f := range a.Findings {
		item := HeaderFinding{
			Header:  f.Header,
			Label:   f.Label,
			Present: f.Present,
			Value:   f.Value,
		}
		if !f.Present {
			msg := f.RiskMessage
			item.RiskMsg = &msg
		}
		resp.HeadersAnalyzed = append(resp.HeadersAnalyzed, item)
	}
	return resp
}
