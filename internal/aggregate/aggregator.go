// Package aggregate merges heterogeneous worker outcomes into one normalized
// ConsolidatedResult: a flat tool status map, severity-bucketed findings, and
// oversized payloads spun out into addressable side-documents. Aggregation is
// deterministic: the same outcome list always yields byte-identical output.
package aggregate

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"AnalysisOrchestrator/internal/dispatch"
	"AnalysisOrchestrator/internal/domain"
)

const sideDocDir = "side_documents"

type Aggregator struct {
	severities       *SeverityMap
	sideDocThreshold int
	version          string
}

func NewAggregator(severities *SeverityMap, sideDocThreshold int, version string) *Aggregator {
	if sideDocThreshold <= 0 {
		sideDocThreshold = 32 * 1024
	}
	if severities == nil {
		severities = &SeverityMap{}
	}
	return &Aggregator{severities: severities, sideDocThreshold: sideDocThreshold, version: version}
}

// Aggregate merges the worker outcomes of one logical job. The second return
// maps side-document relative paths to their exact contents; the main result
// references them by those paths. The caller supplies now so re-aggregating
// identical input stays reproducible.
func (a *Aggregator) Aggregate(task *domain.Task, outcome *dispatch.Outcome, now time.Time) (*domain.ConsolidatedResult, map[string][]byte) {
	res := &domain.ConsolidatedResult{
		Metadata: domain.ResultMetadata{
			TaskID:              task.ID.String(),
			TargetApp:           task.TargetApp,
			TargetRevision:      task.TargetRevision,
			OrchestratorVersion: a.version,
			GeneratedAt:         now.UTC(),
		},
		ToolStatusMap: make(map[string]domain.ToolStatus),
		ToolOutputs:   make(map[string]json.RawMessage),
		SideDocuments: []domain.SideDocumentRef{},
		Findings:      []domain.Finding{},
	}
	sideDocs := make(map[string][]byte)

	workers := append([]dispatch.WorkerOutcome(nil), outcome.Workers...)
	sort.Slice(workers, func(i, j int) bool { return workers[i].Worker < workers[j].Worker })

	for _, w := range workers {
		a.mergeWorker(res, sideDocs, w)
	}

	// Capabilities nobody offers still appear in the map, keyed by the
	// capability name, so a requested-but-impossible analysis is visible.
	for _, capability := range outcome.UnresolvedCapabilities {
		res.ToolStatusMap[capability] = domain.ToolStatus{
			Status: domain.ToolNotAttempted,
			Detail: "no registered worker offers this capability",
		}
	}

	sort.Slice(res.Findings, func(i, j int) bool {
		fi, fj := res.Findings[i], res.Findings[j]
		if r1, r2 := domain.SeverityRank(fi.Severity), domain.SeverityRank(fj.Severity); r1 != r2 {
			return r1 < r2
		}
		if fi.Tool != fj.Tool {
			return fi.Tool < fj.Tool
		}
		if fi.Location != fj.Location {
			return fi.Location < fj.Location
		}
		return fi.Message < fj.Message
	})
	sort.Slice(res.SideDocuments, func(i, j int) bool {
		return res.SideDocuments[i].Name < res.SideDocuments[j].Name
	})
	if len(res.ToolOutputs) == 0 {
		res.ToolOutputs = nil
	}
	return res, sideDocs
}

func (a *Aggregator) mergeWorker(res *domain.ConsolidatedResult, sideDocs map[string][]byte, w dispatch.WorkerOutcome) {
	// The union of what was asked of the worker and what it answered for.
	toolSet := make(map[string]struct{}, len(w.Tools)+len(w.ToolResults))
	for _, t := range w.Tools {
		toolSet[t] = struct{}{}
	}
	for t := range w.ToolResults {
		toolSet[t] = struct{}{}
	}
	tools := make([]string, 0, len(toolSet))
	for t := range toolSet {
		tools = append(tools, t)
	}
	sort.Strings(tools)

	for _, tool := range tools {
		tr, answered := w.ToolResults[tool]
		switch {
		case w.Status == dispatch.OutcomeNotAttempted:
			res.ToolStatusMap[tool] = domain.ToolStatus{Status: domain.ToolNotAttempted, Detail: w.Err}
			continue
		case w.Status == dispatch.OutcomeUnavailable:
			res.ToolStatusMap[tool] = domain.ToolStatus{Status: domain.ToolError, Detail: "worker unreachable: " + w.Err}
			continue
		case !answered && w.Status == dispatch.OutcomeTimeout:
			res.ToolStatusMap[tool] = domain.ToolStatus{Status: domain.ToolTimeout, Detail: w.Err}
			continue
		case !answered:
			res.ToolStatusMap[tool] = domain.ToolStatus{Status: domain.ToolNotAttempted}
			continue
		}

		res.ToolStatusMap[tool] = domain.ToolStatus{
			Status:     normalizeToolStatus(tr.Status),
			IssueCount: len(tr.Issues),
			Detail:     tr.ExitNote,
		}
		for _, issue := range tr.Issues {
			res.Findings = append(res.Findings, domain.Finding{
				Tool:     tool,
				Severity: a.severities.Normalize(tool, issue.Severity),
				Location: issue.Location,
				Message:  issue.Message,
			})
		}
		a.placeOutput(res, sideDocs, tool, tr.Raw)
	}
}

// placeOutput inlines a tool's raw output document, or spills it to a
// side-document when it exceeds the threshold, leaving a {"ref": path} stub.
func (a *Aggregator) placeOutput(res *domain.ConsolidatedResult, sideDocs map[string][]byte, tool string, raw json.RawMessage) {
	if len(raw) == 0 {
		return
	}
	if len(raw) <= a.sideDocThreshold {
		res.ToolOutputs[tool] = raw
		return
	}
	path := fmt.Sprintf("%s/%s.json", sideDocDir, tool)
	sideDocs[path] = []byte(raw)
	res.SideDocuments = append(res.SideDocuments, domain.SideDocumentRef{
		Name:      tool,
		Path:      path,
		SizeBytes: len(raw),
	})
	stub, _ := json.Marshal(map[string]string{"ref": path})
	res.ToolOutputs[tool] = stub
}

func normalizeToolStatus(s string) string {
	switch s {
	case "", "success", "ok", "passed":
		return domain.ToolSuccess
	case "timeout":
		return domain.ToolTimeout
	case "skipped", "not_attempted":
		return domain.ToolNotAttempted
	default:
		return domain.ToolError
	}
}
