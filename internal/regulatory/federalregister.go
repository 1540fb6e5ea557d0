package regulatory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
)

// RuleDocument is one Federal Register document from a rule search.
type RuleDocument struct {
	DocumentNumber  string `json:"document_number"`
	Title           string `json:"title"`
	PublicationDate string `json:"publication_date"`
	Abstract        string `json:"abstract"`
	HTMLURL         string `json:"html_url"`
	RawTextURL      string `json:"raw_text_url"`
}

// SearchRules queries the Federal Register for final CMS rules matching the
// term, most relevant first.
func (c *Client) SearchRules(ctx context.Context, term string, perPage int) ([]RuleDocument, error) {
	params := url.Values{}
	params.Set("conditions[term]", term)
	params.Add("conditions[agencies][]", "centers-for-medicare-medicaid-services")
	params.Add("conditions[type][]", "RULE")
	params.Set("per_page", strconv.Itoa(perPage))
	params.Set("order", "relevance")
	for _, f := range []string{"document_number", "title", "publication_date", "abstract", "html_url", "raw_text_url"} {
		params.Add("fields[]", f)
	}

	body, err := c.get(ctx, c.frURL+"/api/v1/documents.json?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var out struct {
		Results []RuleDocument `json:"results"`
	}
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return nil, fmt.Errorf("parse federal register response: %w", err)
	}
	return out.Results, nil
}

// DocumentText fetches the raw text body of a Federal Register document.
func (c *Client) DocumentText(ctx context.Context, rawTextURL string) (string, error) {
	return c.get(ctx, rawTextURL)
}
