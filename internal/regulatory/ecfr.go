// Package regulatory fetches primary-source policy text from the public
// eCFR and Federal Register APIs. Deep research grounds its findings in this
// text instead of the model's background knowledge.
package regulatory

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const userAgent = "SVAP-Pipeline/1.0 (Structural Vulnerability Analysis)"

// maxBodyBytes caps how much of a source document is read. Full CFR titles
// run to tens of megabytes; parts stay well under this.
const maxBodyBytes = 8 << 20

// Section is one parsed regulation section.
type Section struct {
	SectionID    string
	Heading      string
	Text         string
	CFRReference string
}

// Client talks to both regulatory APIs with a shared HTTP client.
type Client struct {
	http    *http.Client
	ecfrURL string
	frURL   string
}

func New() *Client {
	return &Client{
		http:    &http.Client{Timeout: 60 * time.Second},
		ecfrURL: "https://www.ecfr.gov",
		frURL:   "https://www.federalregister.gov",
	}
}

// ECFRFullText fetches the current XML of one CFR part, e.g. 42 CFR 418.
func (c *Client) ECFRFullText(ctx context.Context, title int, part string) (string, error) {
	url := fmt.Sprintf("%s/api/versioner/v1/full/%s/title-%d.xml?part=%s",
		c.ecfrURL, time.Now().Format("2006-01-02"), title, part)
	return c.get(ctx, url)
}

func (c *Client) get(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", url, err)
	}
	return string(body), nil
}

// ParseSections extracts the individual sections from eCFR part XML. The
// format nests sections as DIV8 elements with SECTNO and HEAD children. A
// document with no recognizable sections degrades to one tag-stripped blob
// so research still has text to work with.
func ParseSections(doc string) []Section {
	dec := xml.NewDecoder(strings.NewReader(doc))
	dec.Strict = false

	var sections []Section
	var cur *Section
	field := ""

	flush := func() {
		if cur == nil {
			return
		}
		cur.Heading = collapseSpace(cur.Heading)
		cur.CFRReference = collapseSpace(cur.CFRReference)
		cur.Text = collapseSpace(cur.Text)
		if cur.Text != "" {
			sections = append(sections, *cur)
		}
		cur = nil
	}

	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "DIV8":
				if attrValue(t, "TYPE") == "SECTION" {
					flush()
					cur = &Section{SectionID: attrValue(t, "N")}
				}
			case "SECTNO":
				field = "sectno"
			case "HEAD":
				field = "head"
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "DIV8":
				flush()
			case "SECTNO", "HEAD":
				field = ""
			}
		case xml.CharData:
			if cur == nil {
				continue
			}
			switch field {
			case "sectno":
				cur.CFRReference += string(t)
			case "head":
				cur.Heading += string(t)
			default:
				cur.Text += string(t) + " "
			}
		}
	}
	flush()

	if len(sections) == 0 {
		if text := collapseSpace(stripTags(doc)); text != "" {
			sections = append(sections, Section{SectionID: "full", Text: text})
		}
	}
	return sections
}

func attrValue(e xml.StartElement, name string) string {
	for _, a := range e.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

var tagPattern = regexp.MustCompile(`<[^>]+>`)

func stripTags(s string) string {
	return tagPattern.ReplaceAllString(s, " ")
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
