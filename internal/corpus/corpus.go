// Package corpus holds the fixed document collection served by the local retriever.
package corpus

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tmc/langchaingo/schema"

	"ragflow/internal/chunker"
)

// Sample returns the built-in sales-team reports.
func Sample() []schema.Document {
	docs := []struct {
		id, content, createdAt string
	}{
		{
			id:        "sales-2024-08-22",
			createdAt: "2024-08-22",
			content:   "Project Update Wednesday 22 August\nJohn Doe\n\n- Researched new marketing strategies using industry trends and created a presentation.\n\n- Developed a social media campaign to increase brand awareness and engagement -- it's showing promising results -- also resulted in a significant increase in followers.\n\n- Now planning a product launch event which will feature our new line of eco-friendly products.",
		},
		{
			id:        "sales-2024-08-23",
			createdAt: "2024-08-23",
			content:   "Jane Smith\n- Moved sales strategy to customer-centric approach\n- Post-launch pipeline is in place. John Doe will cover other marketing channels within the sales framework as his campaign on social media runs.\n\nMichael Brown\n- Produced market analysis report for competitor company on their product line\n- Explored new technologies to evaluate and improve our customer service.",
		},
		{
			id:        "sales-2024-08-24",
			createdAt: "2024-08-24",
			content:   "Daily Report Thursday 23 August\nJane Smith\nI have been working on product positioning and rebranding but it is still having an issue with consistency. So, I will be resolving that issue.\n\nMichael Brown\nI am exploring new sales tools (CRM software) and requested a demo for our team to evaluate its effectiveness.",
		},
		{
			id:        "sales-2024-08-30",
			createdAt: "2024-08-30",
			content:   "Weekly Report 30th August\nJohn Doe\nThe marketing campaign for our new product is ready.\n\nJane Smith\nI completed my research on customer preferences. Now I will move to create a survey to gather more data and train our sales team.\n\nMichael Brown\nI pulled the 'Sales Team' channel posts using a GET request, converted them into JSON format, and am using it as a knowledge base for our sales setup.",
		},
	}
	out := make([]schema.Document, len(docs))
	for i, d := range docs {
		out[i] = schema.Document{
			PageContent: d.content,
			Metadata: map[string]any{
				"id":         d.id,
				"source":     "Sales Team Channel",
				"created_at": d.createdAt,
			},
		}
	}
	return out
}

// LoadFiles reads the .txt files matched by patterns and splits them with ch.
// Patterns that match nothing are treated as literal paths.
func LoadFiles(patterns []string, ch *chunker.SentenceChunker) ([]schema.Document, error) {
	var out []schema.Document
	for _, p := range patterns {
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("bad corpus pattern %q: %w", p, err)
		}
		if matches == nil {
			matches = []string{p}
		}
		for _, m := range matches {
			if !strings.HasSuffix(strings.ToLower(m), ".txt") {
				continue
			}
			data, err := os.ReadFile(m)
			if err != nil {
				return nil, err
			}
			info, err := os.Stat(m)
			if err != nil {
				return nil, err
			}
			for _, c := range ch.Chunk(hashString(m), string(data)) {
				out = append(out, schema.Document{
					PageContent: c.Text,
					Metadata: map[string]any{
						"id":         c.ChunkID,
						"source":     m,
						"created_at": info.ModTime().Format("2006-01-02"),
					},
				})
			}
		}
	}
	return out, nil
}

// Texts returns the page contents of docs.
func Texts(docs []schema.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.PageContent
	}
	return out
}

func hashString(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:8])
}
