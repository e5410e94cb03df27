package domain

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
)

var (
	titlePrefixRe = regexp.MustCompile(`(?i)^Title:\s*`)
	descPrefixRe  = regexp.MustCompile(`(?i)^Description:\s*`)

	// descSplitRe splits model output on an inline "Description:" marker,
	// e.g. "Pothole on MG Road\nDescription: Deep pothole…".
	descSplitRe = regexp.MustCompile(`(?is)^(.*?)\s*Description:\s*(.*)$`)
)

// Describer produces a free-text title and description for a report photo.
type Describer interface {
	Describe(ctx context.Context, imageURL string) (string, error)
}

// ExtractTitleDescription splits model output into a title and description.
// Markdown bold markers and "Title:"/"Description:" labels are removed. When
// the text carries a "Description:" marker the split happens there; otherwise
// the first non-blank line is the title and the remaining non-blank lines,
// joined by spaces, are the description.
func ExtractTitleDescription(text string) (title, description string) {
	text = strings.TrimSpace(strings.ReplaceAll(text, "**", ""))
	text = titlePrefixRe.ReplaceAllString(text, "")
	text = descPrefixRe.ReplaceAllString(text, "")

	if m := descSplitRe.FindStringSubmatch(text); m != nil {
		title = strings.TrimSpace(m[1])
		description = strings.TrimSpace(m[2])
	} else {
		var lines []string
		for _, l := range strings.Split(text, "\n") {
			if l = strings.TrimSpace(l); l != "" {
				lines = append(lines, l)
			}
		}
		if len(lines) > 0 {
			title = lines[0]
			description = strings.TrimSpace(strings.Join(lines[1:], " "))
		}
	}

	return stripLabels(title), stripLabels(description)
}

func stripLabels(s string) string {
	s = titlePrefixRe.ReplaceAllString(s, "")
	s = descPrefixRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// EnrichWithDescription fills an empty title or description from the report
// photo. User-provided text is never overwritten. If describer is nil, the
// report has no image, or the describer fails, the report is returned as is.
func EnrichWithDescription(ctx context.Context, r Report, describer Describer, logger *slog.Logger) Report {
	if describer == nil || r.ImageURL == "" {
		return r
	}
	if r.Title != "" && r.Description != "" {
		return r
	}

	text, err := describer.Describe(ctx, r.ImageURL)
	if err != nil {
		logger.Warn("describe report failed",
			"report_id", r.ID,
			"image", r.ImageURL,
			"error", err,
		)
		return r
	}

	title, description := ExtractTitleDescription(text)
	if r.Title == "" {
		r.Title = title
	}
	if r.Description == "" {
		r.Description = description
	}
	return r
}
