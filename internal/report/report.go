// Package report summarizes the state of the checkpoint and record stores
// for the status command.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/nao1215/markdown"

	"github.com/JakeFAU/attraction-crawler/internal/crawler"
	"github.com/JakeFAU/attraction-crawler/internal/runs"
)

// Format names an output format of the status report.
type Format string

const (
	// FormatJSON renders the summary as indented JSON.
	FormatJSON Format = "json"
	// FormatMarkdown renders the summary as Markdown tables.
	FormatMarkdown Format = "markdown"
)

// Group counts records and committed keys for one source and category.
type Group struct {
	Source    string `json:"source"`
	Category  string `json:"category"`
	Records   int    `json:"records"`
	Committed int    `json:"committed"`
}

// Summary is the status of a crawl's stores.
type Summary struct {
	CheckpointKeys int     `json:"checkpoint_keys"`
	Records        int     `json:"records"`
	Groups         []Group `json:"groups"`
	// Runs lists recent runs when run history is configured.
	Runs []runs.Run `json:"runs,omitempty"`
}

// Pending returns how many committed keys have no stored record. It is
// negative when records were appended but never committed.
func (s Summary) Pending() int {
	return s.CheckpointKeys - s.Records
}

// Summarize groups records and checkpoint keys by source and category,
// sorted by both. Keys that do not parse count toward the total only.
func Summarize(checkpointKeys []string, records []crawler.Record) Summary {
	counts := make(map[[2]string]*Group)
	group := func(source, category string) *Group {
		k := [2]string{source, category}
		g, ok := counts[k]
		if !ok {
			g = &Group{Source: source, Category: category}
			counts[k] = g
		}
		return g
	}
	for _, r := range records {
		group(r.City, r.Category).Records++
	}
	for _, raw := range checkpointKeys {
		key, err := crawler.ParseItemKey(raw)
		if err != nil {
			continue
		}
		group(key.Source, key.Category).Committed++
	}
	groups := make([]Group, 0, len(counts))
	for _, g := range counts {
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Source != groups[j].Source {
			return groups[i].Source < groups[j].Source
		}
		return groups[i].Category < groups[j].Category
	})
	return Summary{CheckpointKeys: len(checkpointKeys), Records: len(records), Groups: groups}
}

// Write renders s to w in the requested format.
func Write(w io.Writer, format Format, s Summary, generatedAt time.Time) error {
	switch format {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(s); err != nil {
			return fmt.Errorf("encode status: %w", err)
		}
		return nil
	case FormatMarkdown:
		return writeMarkdown(w, s, generatedAt)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

func writeMarkdown(w io.Writer, s Summary, generatedAt time.Time) error {
	md := markdown.NewMarkdown(w)
	md.H1("Crawl Status")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Generated", generatedAt.UTC().Format(time.RFC3339)},
			{"Checkpoint keys", strconv.Itoa(s.CheckpointKeys)},
			{"Records", strconv.Itoa(s.Records)},
			{"Pending", strconv.Itoa(s.Pending())},
		},
	})
	md.PlainText("")

	if len(s.Groups) > 0 {
		md.H2("Records by Category")
		md.PlainText("")
		rows := make([][]string, 0, len(s.Groups))
		for _, g := range s.Groups {
			rows = append(rows, []string{g.Source, g.Category, strconv.Itoa(g.Records), strconv.Itoa(g.Committed)})
		}
		md.Table(markdown.TableSet{
			Header: []string{"Source", "Category", "Records", "Committed"},
			Rows:   rows,
		})
	}
	if len(s.Runs) > 0 {
		md.PlainText("")
		md.H2("Recent Runs")
		md.PlainText("")
		rows := make([][]string, 0, len(s.Runs))
		for _, r := range s.Runs {
			rows = append(rows, []string{
				r.ID,
				r.StartedAt.UTC().Format(time.RFC3339),
				string(r.Status),
				strconv.Itoa(r.Extracted),
				strconv.Itoa(r.Skipped),
				strconv.Itoa(r.Failed),
				r.Note,
			})
		}
		md.Table(markdown.TableSet{
			Header: []string{"Run", "Started", "Status", "Extracted", "Skipped", "Failed", "Note"},
			Rows:   rows,
		})
	}
	if err := md.Build(); err != nil {
		return fmt.Errorf("write markdown: %w", err)
	}
	return nil
}
