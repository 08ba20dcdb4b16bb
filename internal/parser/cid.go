package parser

import (
	"encoding/base64"
	"mime"
	"path/filepath"
	"regexp"
	"strings"
)

// Reference-rewrite patterns, compiled once and reused. The attribute name
// and the cid: scheme match case-insensitively; values may use single or
// double quotes.
var (
	cidAttrPattern = regexp.MustCompile(`(?i)\b(src|href)\s*=\s*["']cid:([^"']+)["']`)
	cidCSSPattern  = regexp.MustCompile(`(?i)url\(['"]cid:([^'"]+)['"]\)`)
)

// normalizeContentID strips surrounding whitespace and angle brackets, the
// form content ids are keyed by.
func normalizeContentID(id string) string {
	return strings.Trim(strings.TrimSpace(id), "<>")
}

// add stores a data URI for one payload under its normalized content id.
// Entries without an id or without payload bytes are skipped.
func (m ContentIDMap) add(contentID, contentType, filename string, data []byte) {
	id := normalizeContentID(contentID)
	if id == "" || len(data) == 0 {
		return
	}
	uri := "data:" + resolveContentType(contentType, filename) +
		";base64," + base64.StdEncoding.EncodeToString(data)
	m[id] = uri
}

// resolveContentType picks the declared type when present, then a guess
// from the filename extension, then application/octet-stream.
func resolveContentType(declared, filename string) string {
	declared = strings.TrimSpace(declared)
	if declared != "" {
		return declared
	}
	if ext := filepath.Ext(filename); ext != "" {
		if guessed := mime.TypeByExtension(ext); guessed != "" {
			// TypeByExtension may append parameters; the bare type is enough.
			if i := strings.Index(guessed, ";"); i >= 0 {
				guessed = guessed[:i]
			}
			return guessed
		}
	}
	return "application/octet-stream"
}

// inlineReferences rewrites src/href attributes and CSS url() arguments
// that point at cid: references, substituting the mapped data URI.
// References with no mapping stay verbatim, and no other markup changes.
func inlineReferences(html string, cids ContentIDMap) string {
	if html == "" || len(cids) == 0 {
		return html
	}
	html = cidAttrPattern.ReplaceAllStringFunc(html, func(match string) string {
		groups := cidAttrPattern.FindStringSubmatch(match)
		uri, ok := cids[normalizeContentID(groups[2])]
		if !ok {
			return match
		}
		return groups[1] + `="` + uri + `"`
	})
	html = cidCSSPattern.ReplaceAllStringFunc(html, func(match string) string {
		groups := cidCSSPattern.FindStringSubmatch(match)
		uri, ok := cids[normalizeContentID(groups[1])]
		if !ok {
			return match
		}
		return "url('" + uri + "')"
	})
	return html
}
