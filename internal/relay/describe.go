package relay

import (
	"bytes"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const maxHTMLBodyBytes = 1 << 20 // 1 MiB

// describeBody summarises a non-JSON upstream body for the exception payload.
// HTML pages are identified by their title.
func describeBody(header http.Header, body []byte) string {
	contentType := ""
	if header != nil {
		contentType = header.Get("Content-Type")
	}
	mediaType, _, _ := mime.ParseMediaType(contentType)

	if len(bytes.TrimSpace(body)) == 0 {
		return "empty body"
	}

	if mediaType == "text/html" || looksLikeHTML(body) {
		if title := pageTitle(body); title != "" {
			return fmt.Sprintf("got an HTML page titled %q", title)
		}
		return "got an HTML page"
	}

	if mediaType == "" {
		mediaType = "unknown content type"
	}
	return fmt.Sprintf("got %d bytes of %s", len(body), mediaType)
}

func looksLikeHTML(body []byte) bool {
	head := body
	if len(head) > 512 {
		head = head[:512]
	}
	lower := strings.ToLower(string(bytes.TrimSpace(head)))
	return strings.HasPrefix(lower, "<!doctype html") || strings.HasPrefix(lower, "<html")
}

func pageTitle(body []byte) string {
	if len(body) > maxHTMLBodyBytes {
		body = body[:maxHTMLBodyBytes]
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	if node := doc.Find(`meta[property="og:title"]`).First(); node.Length() > 0 {
		if val, ok := node.Attr("content"); ok && strings.TrimSpace(val) != "" {
			return strings.TrimSpace(val)
		}
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}
