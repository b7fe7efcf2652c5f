// Package text splits travel-guide markdown into passages for the knowledge base.
package text

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	DefaultMaxRunes = 500
	DefaultOverlap  = 50
)

var (
	editLinkRe  = regexp.MustCompile(`(?mi)\[(?:edit|编辑|編輯)[^\]]*\](?:\([^\)]*\))?`)
	tocRe       = regexp.MustCompile(`(?mi)^#{1,3}\s*(?:(?:table of )?contents?|目录|目錄)\s*\n(?:\s*[-*]\s*\[.*?\]\(#.*?\)\s*\n)*`)
	mediaLineRe = regexp.MustCompile(`(?m)^\s*!\[[^\]]*\]\([^\)]*\)\s*$`)
	headerRe    = regexp.MustCompile(`(?m)^#{1,6}\s`)
	linkLineRe  = regexp.MustCompile(`^\s*[-*]?\s*\[.*?\]\(.*?\)\s*$`)
	blankRunsRe = regexp.MustCompile(`\n{3,}`)
)

// CleanMarkdownNoise strips edit links, image-only lines and contents blocks.
func CleanMarkdownNoise(text string) string {
	text = editLinkRe.ReplaceAllString(text, "")
	text = tocRe.ReplaceAllString(text, "")
	text = mediaLineRe.ReplaceAllString(text, "")
	return blankRunsRe.ReplaceAllString(text, "\n\n")
}

// IsNoiseChunk reports passages too low-value to embed: bare headings, link lists
// and license footers.
func IsNoiseChunk(content string) bool {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return true
	}

	// a lone heading or label
	if !strings.Contains(trimmed, "\n") && utf8.RuneCountInString(strings.TrimLeft(trimmed, "# ")) < 8 &&
		!strings.ContainsAny(trimmed, "。，.,") {
		return true
	}

	lines := filterNonEmpty(strings.Split(trimmed, "\n"))
	if len(lines) > 2 {
		links := 0
		for _, l := range lines {
			if linkLineRe.MatchString(l) {
				links++
			}
		}
		if float64(links)/float64(len(lines)) > 0.7 {
			return true
		}
	}

	lower := strings.ToLower(trimmed)
	if utf8.RuneCountInString(trimmed) < 200 &&
		(strings.Contains(lower, "cc by-sa") || strings.Contains(lower, "知识共享") || strings.Contains(lower, "creative commons")) {
		return true
	}
	return false
}

func filterNonEmpty(lines []string) []string {
	var result []string
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			result = append(result, l)
		}
	}
	return result
}

// SplitMarkdown cuts text into passages of at most maxRunes runes, preferring
// section, then paragraph, then line boundaries. Lines longer than maxRunes are
// cut into windows that share overlap runes. Noise passages are dropped.
func SplitMarkdown(text string, maxRunes, overlap int) []string {
	if maxRunes <= 0 {
		maxRunes = DefaultMaxRunes
	}
	if overlap < 0 || overlap >= maxRunes {
		overlap = 0
	}

	var out []string
	for _, section := range sections(CleanMarkdownNoise(text)) {
		for _, p := range splitSection(section, maxRunes, overlap) {
			if !IsNoiseChunk(p) {
				out = append(out, p)
			}
		}
	}
	return out
}

func sections(text string) []string {
	var out []string
	last := 0
	for _, loc := range headerRe.FindAllStringIndex(text, -1) {
		if loc[0] > last {
			out = append(out, text[last:loc[0]])
		}
		last = loc[0]
	}
	if last < len(text) {
		out = append(out, text[last:])
	}
	return out
}

type packer struct {
	max    int
	buf    strings.Builder
	n      int
	chunks []string
}

func (p *packer) flush() {
	if s := strings.TrimSpace(p.buf.String()); s != "" {
		p.chunks = append(p.chunks, s)
	}
	p.buf.Reset()
	p.n = 0
}

// add appends s with sep when it fits, otherwise starts a new passage.
func (p *packer) add(s, sep string) bool {
	n := utf8.RuneCountInString(s)
	if p.n > 0 && p.n+utf8.RuneCountInString(sep)+n > p.max {
		p.flush()
	}
	if n > p.max {
		return false
	}
	if p.n > 0 {
		p.buf.WriteString(sep)
		p.n += utf8.RuneCountInString(sep)
	}
	p.buf.WriteString(s)
	p.n += n
	return true
}

func splitSection(section string, maxRunes, overlap int) []string {
	section = strings.TrimSpace(section)
	if section == "" {
		return nil
	}
	if utf8.RuneCountInString(section) <= maxRunes {
		return []string{section}
	}

	p := &packer{max: maxRunes}
	for _, para := range strings.Split(section, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" || p.add(para, "\n\n") {
			continue
		}
		for _, line := range strings.Split(para, "\n") {
			if line = strings.TrimSpace(line); line == "" || p.add(line, "\n") {
				continue
			}
			p.flush()
			p.chunks = append(p.chunks, windows(line, maxRunes, overlap)...)
		}
		p.flush()
	}
	p.flush()
	return p.chunks
}

// windows cuts s into rune windows of the given size, each sharing overlap runes with the previous one.
func windows(s string, size, overlap int) []string {
	runes := []rune(s)
	step := size - overlap
	var out []string
	for start := 0; start < len(runes); start += step {
		end := min(start+size, len(runes))
		out = append(out, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return out
}
