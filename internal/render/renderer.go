package render

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/venedict/inquest/internal/model"
)

// Renderer writes research results to files and the terminal
type Renderer struct {
	verbose bool
}

// NewRenderer creates a renderer
func NewRenderer(verbose bool) *Renderer {
	return &Renderer{verbose: verbose}
}

// RenderJSON writes the full result as indented JSON
func (r *Renderer) RenderJSON(result *model.ResearchResult, path string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if r.verbose {
		fmt.Printf("✓ Wrote JSON: %s\n", path)
	}
	return nil
}

// RenderMarkdown writes the formatted report body
func (r *Renderer) RenderMarkdown(result *model.ResearchResult, path string) error {
	if err := os.WriteFile(path, []byte(result.Report), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if r.verbose {
		fmt.Printf("✓ Wrote Markdown: %s\n", path)
	}
	return nil
}

// RenderSummary prints the terminal summary
func (r *Renderer) RenderSummary(result *model.ResearchResult) {
	fmt.Println()
	fmt.Printf("Query:      %s\n", result.Query.RawText)
	fmt.Printf("Status:     %s\n", result.Status)
	fmt.Printf("Confidence: %.2f (%s)\n", result.OverallConfidence, model.LevelFor(result.OverallConfidence))
	fmt.Printf("Findings:   %d\n", len(result.Findings))
	fmt.Printf("Sources:    %d consulted, %d cited\n", result.Metadata.SourcesConsulted, len(result.Sources))
	fmt.Printf("Elapsed:    %s\n", result.Metadata.ProcessingTime.Round(10*time.Millisecond))
	fmt.Println()
	fmt.Println(result.Summary)

	if len(result.Missing) > 0 {
		fmt.Println()
		fmt.Printf("Incomplete work (%d):\n", len(result.Missing))
		for _, m := range result.Missing {
			fmt.Printf("  - %s: %s\n", m.Stage, m.Reason)
		}
	}
}
