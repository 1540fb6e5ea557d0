package regulatory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const samplePartXML = `<?xml version="1.0"?>
<DIV5 N="418" TYPE="PART">
  <HEAD>PART 418 - HOSPICE CARE</HEAD>
  <DIV8 N="418.22" TYPE="SECTION">
    <SECTNO>§ 418.22</SECTNO>
    <HEAD>Certification of terminal illness.</HEAD>
    <P>For the first 90-day period of hospice coverage, the hospice must obtain
    written certification statements from the medical director and the
    individual's attending physician.</P>
    <P>The certification must specify that the individual's prognosis is for a
    life expectancy of 6 months or less if the terminal illness runs its
    normal course.</P>
  </DIV8>
  <DIV8 N="418.24" TYPE="SECTION">
    <SECTNO>§ 418.24</SECTNO>
    <HEAD>Election of hospice care.</HEAD>
    <P>An individual must file an election statement with a particular hospice.</P>
  </DIV8>
</DIV5>`

func TestParseSections(t *testing.T) {
	sections := ParseSections(samplePartXML)
	if len(sections) != 2 {
		t.Fatalf("got %d sections, want 2", len(sections))
	}

	first := sections[0]
	if first.SectionID != "418.22" {
		t.Errorf("section id = %q, want 418.22", first.SectionID)
	}
	if first.CFRReference != "§ 418.22" {
		t.Errorf("cfr reference = %q, want § 418.22", first.CFRReference)
	}
	if first.Heading != "Certification of terminal illness." {
		t.Errorf("heading = %q", first.Heading)
	}
	if !strings.Contains(first.Text, "written certification statements") {
		t.Errorf("section text missing body: %q", first.Text)
	}
	if strings.Contains(first.Text, "Election of hospice care") {
		t.Error("section text leaked from the following section")
	}
}

func TestParseSectionsFallsBackToStrippedText(t *testing.T) {
	sections := ParseSections(`<BODY><P>No DIV8 structure here, just prose.</P></BODY>`)
	if len(sections) != 1 {
		t.Fatalf("got %d sections, want 1 fallback blob", len(sections))
	}
	if sections[0].Text != "No DIV8 structure here, just prose." {
		t.Errorf("fallback text = %q", sections[0].Text)
	}
}

func TestSourcesFor(t *testing.T) {
	tests := []struct {
		name string
		want []CFRRef
	}{
		{"Medicare Hospice Benefit", []CFRRef{{42, "418"}}},
		{"Home Health Prospective Payment", []CFRRef{{42, "484"}}},
		{"Tax Credit for Solar Panels", nil},
	}
	for _, tt := range tests {
		got := SourcesFor(tt.name)
		if len(got) != len(tt.want) {
			t.Errorf("SourcesFor(%q) = %v, want %v", tt.name, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("SourcesFor(%q)[%d] = %v, want %v", tt.name, i, got[i], tt.want[i])
			}
		}
	}
}

func TestECFRFullText(t *testing.T) {
	var gotPath, gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAgent = r.Header.Get("User-Agent")
		w.Write([]byte(samplePartXML))
	}))
	defer srv.Close()

	c := &Client{http: srv.Client(), ecfrURL: srv.URL}
	text, err := c.ECFRFullText(context.Background(), 42, "418")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !strings.Contains(text, "HOSPICE CARE") {
		t.Error("response body not returned")
	}
	if !strings.Contains(gotPath, "title-42.xml") {
		t.Errorf("request path = %q, want a title-42.xml fetch", gotPath)
	}
	if gotAgent != userAgent {
		t.Errorf("user agent = %q, want %q", gotAgent, userAgent)
	}
}

func TestSearchRules(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("conditions[term]") != "hospice payment" {
			t.Errorf("term = %q", q.Get("conditions[term]"))
		}
		if q.Get("conditions[agencies][]") != "centers-for-medicare-medicaid-services" {
			t.Errorf("agency filter = %q", q.Get("conditions[agencies][]"))
		}
		w.Write([]byte(`{"results": [{"document_number": "2024-1234",
			"title": "Hospice Payment Rate Update", "publication_date": "2024-08-01",
			"raw_text_url": "https://example.gov/raw/2024-1234"}]}`))
	}))
	defer srv.Close()

	c := &Client{http: srv.Client(), frURL: srv.URL}
	docs, err := c.SearchRules(context.Background(), "hospice payment", 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(docs) != 1 || docs[0].DocumentNumber != "2024-1234" {
		t.Fatalf("docs = %+v, want the one stubbed rule", docs)
	}
}

func TestGetRejectsNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := &Client{http: srv.Client(), ecfrURL: srv.URL}
	if _, err := c.ECFRFullText(context.Background(), 42, "418"); err == nil {
		t.Error("expected error on 429 response")
	}
}
