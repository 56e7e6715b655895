/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package knowledge loads a corpus of Markdown policy documents and
// answers weighted relevance queries over their heading-delimited
// sections. Document parsing follows the teacher's skill.Loader.Parse
// idiom: optional YAML frontmatter (here: title/tags overrides) via
// sigs.k8s.io/yaml, followed by a Markdown body — generalized from one
// frontmatter block per file to heading-segmented sections within it.
package knowledge

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"sigs.k8s.io/yaml"

	"github.com/kubesentry/investigator/internal/adapters/fsadapter"
	"github.com/kubesentry/investigator/internal/model"
)

// Index is the read-only-after-construction KnowledgeIndex from §4.6.
type Index struct {
	docs []model.KnowledgeDocument
}

// Len reports how many documents the corpus holds, so callers can tell an
// empty knowledge base apart from one that simply has no match for a query.
func (idx *Index) Len() int {
	return len(idx.docs)
}

type frontmatter struct {
	Title string   `json:"title"`
	Tags  []string `json:"tags"`
}

// Load reads every *.md file under dir and builds an Index. An empty or
// missing corpus directory yields an empty Index, not an error — §8
// requires Query to return an empty list rather than fail.
func Load(ctx context.Context, fs fsadapter.Adapter, dir string) (*Index, error) {
	names, err := fs.List(ctx, dir)
	if err != nil {
		return &Index{}, nil
	}

	idx := &Index{}
	for _, name := range names {
		if filepath.Ext(name) != ".md" {
			continue
		}
		data, err := fs.Read(ctx, filepath.Join(dir, name))
		if err != nil {
			continue
		}
		doc, err := parseDocument(name, string(data))
		if err != nil {
			continue
		}
		idx.docs = append(idx.docs, doc)
	}

	sort.Slice(idx.docs, func(a, b int) bool { return idx.docs[a].Filename < idx.docs[b].Filename })
	return idx, nil
}

// parseDocument splits optional YAML frontmatter from the Markdown body,
// then segments the body by heading into sections.
func parseDocument(filename, content string) (model.KnowledgeDocument, error) {
	fm, body := splitFrontmatter(content)

	doc := model.KnowledgeDocument{
		ID:       strings.TrimSuffix(filename, filepath.Ext(filename)),
		Filename: filename,
	}

	var meta frontmatter
	if fm != "" {
		if err := yaml.Unmarshal([]byte(fm), &meta); err != nil {
			return doc, fmt.Errorf("parsing frontmatter in %s: %w", filename, err)
		}
	}
	doc.Title = meta.Title
	doc.Tags = meta.Tags

	doc.Sections = segmentByHeading(doc.ID, body)
	if doc.Title == "" && len(doc.Sections) > 0 {
		doc.Title = doc.Sections[0].Title
	}
	for _, s := range doc.Sections {
		doc.Tags = append(doc.Tags, s.Tags...)
	}

	return doc, nil
}

// splitFrontmatter extracts a leading "---\n...\n---\n" YAML block, if present.
func splitFrontmatter(content string) (frontmatter, body string) {
	const delim = "---"
	if !strings.HasPrefix(content, delim) {
		return "", content
	}
	rest := content[len(delim):]
	end := strings.Index(rest, "\n"+delim)
	if end == -1 {
		return "", content
	}
	fm := strings.TrimPrefix(rest[:end], "\n")
	body = strings.TrimPrefix(rest[end+len(delim)+1:], "\n")
	return fm, body
}

// segmentByHeading splits a Markdown body into sections at every line that
// starts with "#" (any heading level), tagging each with tokens derived
// from its heading and first sentence.
func segmentByHeading(docID, body string) []model.KnowledgeSection {
	lines := strings.Split(body, "\n")

	var sections []model.KnowledgeSection
	var curTitle string
	var curBody []string
	sectionIdx := 0

	flush := func() {
		if curTitle == "" && len(curBody) == 0 {
			return
		}
		sectionIdx++
		bodyText := strings.TrimSpace(strings.Join(curBody, "\n"))
		sections = append(sections, model.KnowledgeSection{
			ID:    docID + "-s" + strconv.Itoa(sectionIdx),
			Title: curTitle,
			Body:  bodyText,
			Tags:  tokenize(curTitle, firstSentence(bodyText)),
		})
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			flush()
			curTitle = strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
			curBody = nil
			continue
		}
		curBody = append(curBody, line)
	}
	flush()

	return sections
}

func firstSentence(s string) string {
	if idx := strings.IndexAny(s, ".\n"); idx != -1 {
		return s[:idx]
	}
	return s
}

func tokenize(strs ...string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range strs {
		for _, tok := range strings.Fields(strings.ToLower(s)) {
			tok = strings.Trim(tok, ".,;:!?()\"'")
			if tok == "" || seen[tok] {
				continue
			}
			seen[tok] = true
			out = append(out, tok)
		}
	}
	return out
}
