package aggregate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"AnalysisOrchestrator/internal/dispatch"
	"AnalysisOrchestrator/internal/domain"
)

// Writer lays one task's artifacts out on disk:
//
//	<root>/<task_id>/result.json        consolidated document
//	<root>/<task_id>/manifest.json      cheap existence/summary check
//	<root>/<task_id>/side_documents/    oversized payloads, referenced by path
//	<root>/<task_id>/raw/<worker>.json  per-worker raw snapshots
type Writer struct {
	root string
}

func NewWriter(root string) *Writer {
	return &Writer{root: root}
}

// Write persists the result directory and returns its path (the task's
// result_ref). Side-documents and raw snapshots land before result.json so a
// reader that sees the main document never dangles a reference.
func (w *Writer) Write(task *domain.Task, status string, res *domain.ConsolidatedResult,
	sideDocs map[string][]byte, outcome *dispatch.Outcome) (string, error) {

	dir := filepath.Join(w.root, task.ID.String())
	if err := os.MkdirAll(filepath.Join(dir, sideDocDir), 0o755); err != nil {
		return "", fmt.Errorf("create result dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "raw"), 0o755); err != nil {
		return "", fmt.Errorf("create raw dir: %w", err)
	}

	for rel, body := range sideDocs {
		if err := os.WriteFile(filepath.Join(dir, filepath.FromSlash(rel)), body, 0o644); err != nil {
			return "", fmt.Errorf("write side document %s: %w", rel, err)
		}
	}

	for _, wo := range outcome.Workers {
		snap, err := json.MarshalIndent(wo, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal raw snapshot for %s: %w", wo.Worker, err)
		}
		path := filepath.Join(dir, "raw", wo.Worker+".json")
		if err := os.WriteFile(path, snap, 0o644); err != nil {
			return "", fmt.Errorf("write raw snapshot for %s: %w", wo.Worker, err)
		}
	}

	body, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "result.json"), body, 0o644); err != nil {
		return "", fmt.Errorf("write result: %w", err)
	}

	manifest := domain.Manifest{
		TaskID:        task.ID.String(),
		Status:        status,
		ResultBytes:   len(body),
		FindingCount:  len(res.Findings),
		SideDocuments: res.SideDocuments,
	}
	mbody, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), mbody, 0o644); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	return dir, nil
}

// ReadResult loads a consolidated result from a task's result_ref.
func ReadResult(resultRef string) (*domain.ConsolidatedResult, error) {
	raw, err := os.ReadFile(filepath.Join(resultRef, "result.json"))
	if err != nil {
		return nil, err
	}
	var res domain.ConsolidatedResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("parse result: %w", err)
	}
	return &res, nil
}

// ReadManifest loads the lightweight manifest from a task's result_ref.
func ReadManifest(resultRef string) (*domain.Manifest, error) {
	raw, err := os.ReadFile(filepath.Join(resultRef, "manifest.json"))
	if err != nil {
		return nil, err
	}
	var m domain.Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}

// ReadSideDocument returns the exact bytes of a referenced side-document.
func ReadSideDocument(resultRef string, ref domain.SideDocumentRef) ([]byte, error) {
	return os.ReadFile(filepath.Join(resultRef, filepath.FromSlash(ref.Path)))
}
