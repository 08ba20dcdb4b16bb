package parser

import "strings"

// part is one leaf of a message's MIME tree. The payload arrives
// transfer-decoded from the mail reader; quoted-printable escapes that an
// upstream layer left behind are handled by the content cleanup pass.
type part struct {
	mediaType   string // lowercased media type, "" when undeclared
	params      map[string]string
	disposition string // lowercased content-disposition token
	filename    string
	contentID   string
	data        []byte
	size        int64
}

// extractBodies selects the canonical plain and HTML bodies from the leaf
// parts of a message.
//
// Multipart sources keep the first text/plain and the first text/html part
// encountered in depth-first order; later duplicates are ignored. A
// single-part source is classified by its declared type, or by a markup
// heuristic when the type is missing or unhelpful. In either case a plain
// body that looks like markup is promoted to the HTML slot when that slot
// is still empty.
func extractBodies(parts []part, isMultipart bool) (plain, html string) {
	if isMultipart {
		var plainFound, htmlFound bool
		for i := range parts {
			p := &parts[i]
			switch p.mediaType {
			case "text/plain":
				if !plainFound {
					plain = decodeContent(p.data, "")
					plainFound = true
				}
			case "text/html":
				if !htmlFound {
					html = cleanHTMLContent(decodeContent(p.data, ""))
					htmlFound = true
				}
			}
		}
	} else if len(parts) == 1 {
		p := &parts[0]
		content := decodeContent(p.data, "")
		switch {
		case p.mediaType == "text/plain":
			plain = content
		case p.mediaType == "text/html":
			html = cleanHTMLContent(content)
		case looksLikeHTML(content):
			html = cleanHTMLContent(content)
		default:
			plain = content
		}
	}

	if html == "" && plain != "" && looksLikeHTML(plain) {
		html = cleanHTMLContent(plain)
	}
	return plain, html
}

// looksLikeHTML reports whether decoded content reads as markup: it starts
// with a tag once trimmed, or mentions <html anywhere.
func looksLikeHTML(content string) bool {
	trimmed := strings.TrimSpace(content)
	return strings.HasPrefix(trimmed, "<") ||
		strings.Contains(strings.ToLower(content), "<html")
}

var quotedPrintableMarkers = []string{"=20", "=3D", "=0D", "=0A"}

// cleanHTMLContent repairs HTML that still carries quoted-printable
// escapes from an upstream layer that decoded it only partially, strips
// soft-hyphen entities, and removes the usual encoding artifacts.
func cleanHTMLContent(html string) string {
	if html == "" {
		return ""
	}
	if strings.Contains(html, "=") {
		for _, marker := range quotedPrintableMarkers {
			if strings.Contains(html, marker) {
				html = runChain(unescapeQuotedPrintable([]byte(html)), contentChain)
				break
			}
		}
	}
	html = strings.ReplaceAll(html, "&shy;", "")
	return cleanEncodedArtifacts(html)
}
