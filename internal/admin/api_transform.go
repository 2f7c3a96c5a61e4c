package admin

import (
	"net/http"

	"github.com/inkdust2021/ringsnap/internal/match"
	"github.com/inkdust2021/ringsnap/internal/normalize"
)

// TransformResult is one candidate URL as returned by the transform API.
type TransformResult struct {
	Matched   bool   `json:"matched"`
	RuleName  string `json:"rule_name,omitempty"`
	RuleIndex int    `json:"rule_index"`
	URL       string `json:"url,omitempty"`
	IconURL   string `json:"icon_url,omitempty"`
}

// TransformResponse represents the transform API response. Results is only set
// when all candidates were requested.
type TransformResponse struct {
	Text    string            `json:"text"`
	Result  TransformResult   `json:"result"`
	Results []TransformResult `json:"results,omitempty"`
}

// handleTransform handles POST /manager/api/transform
func (a *Admin) handleTransform(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Text string `json:"text"`
		All  bool   `json:"all"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	resp := TransformResponse{Text: normalize.Text(req.Text)}
	ev := HistoryEvent{Source: "api", Input: resp.Text}

	if req.All {
		all := a.service.TransformAll(req.Text)
		resp.Results = make([]TransformResult, 0, len(all))
		for _, res := range all {
			resp.Results = append(resp.Results, a.transformResult(res))
		}
		if len(all) > 0 {
			resp.Result = resp.Results[0]
		}
		ev.Candidates = len(all)
	} else {
		resp.Result = a.transformResult(a.service.Transform(req.Text))
	}

	ev.Matched = resp.Result.Matched
	ev.RuleName = resp.Result.RuleName
	ev.RuleIndex = resp.Result.RuleIndex
	ev.URL = resp.Result.URL
	a.RecordTransform(ev)

	writeJSON(w, http.StatusOK, resp)
}

func (a *Admin) transformResult(res match.Result) TransformResult {
	if !res.Matched {
		return TransformResult{RuleIndex: -1}
	}
	return TransformResult{
		Matched:   true,
		RuleName:  res.Rule.Name,
		RuleIndex: res.Index,
		URL:       res.URL,
		IconURL:   a.icons.Load().Rule(res.Rule),
	}
}
