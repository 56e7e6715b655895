/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package knowledge

import (
	"sort"
	"strings"

	"github.com/kubesentry/investigator/internal/model"
)

// Query ranks sections by the weighted scheme from §4.6: exact topic
// match in heading (weight 3), topic token overlap with heading (weight
// 2), token overlap with body (weight 1). Ties are broken by document
// filename lexicographic order, which Load already sorted by.
func (idx *Index) Query(topic string, k int) []model.KnowledgeResult {
	if k <= 0 {
		k = 3
	}
	topicLower := strings.ToLower(topic)
	topicTokens := tokenize(topic)

	var results []model.KnowledgeResult
	for _, doc := range idx.docs {
		for _, sec := range doc.Sections {
			score := scoreSection(topicLower, topicTokens, sec)
			if score <= 0 {
				continue
			}
			results = append(results, model.KnowledgeResult{
				DocID:     doc.ID,
				SectionID: sec.ID,
				Title:     sec.Title,
				Body:      sec.Body,
				Score:     score,
			})
		}
	}

	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Score > results[b].Score
	})

	if len(results) > k {
		results = results[:k]
	}
	return results
}

func scoreSection(topicLower string, topicTokens []string, sec model.KnowledgeSection) float64 {
	titleLower := strings.ToLower(sec.Title)

	var score float64
	if titleLower == topicLower {
		score += 3
	}

	headingTokens := tokenize(sec.Title)
	if overlap(topicTokens, headingTokens) {
		score += 2
	}

	bodyTokens := tokenize(sec.Body)
	if overlap(topicTokens, bodyTokens) {
		score += 1
	}

	return score
}

func overlap(a, b []string) bool {
	set := make(map[string]bool, len(b))
	for _, t := range b {
		set[t] = true
	}
	for _, t := range a {
		if set[t] {
			return true
		}
	}
	return false
}
