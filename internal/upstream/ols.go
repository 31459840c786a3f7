package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/FocuswithJustin/obosync/core/errors"
)

// OntologyInfo is the release metadata OLS reports for an ontology.
type OntologyInfo struct {
	Updated       string `json:"updated"`
	Version       string `json:"version"`
	NumberOfTerms int    `json:"numberOfTerms"`
}

// OLSTerm is one term as listed by OLS.
type OLSTerm struct {
	OBOID       string   `json:"obo_id"`
	Label       string   `json:"label"`
	IRI         string   `json:"iri"`
	Description []string `json:"description"`
	IsObsolete  bool     `json:"is_obsolete"`
}

// OLSClient reads ontology metadata and terms from OLS.
type OLSClient struct {
	BaseURL  string
	Ontology string
	PageSize int
	client   *http.Client
}

// NewOLSClient returns a client for one ontology.
func NewOLSClient(baseURL, ontology string, pageSize int, timeout time.Duration) *OLSClient {
	if pageSize < 1 {
		pageSize = 100
	}
	return &OLSClient{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Ontology: ontology,
		PageSize: pageSize,
		client:   &http.Client{Timeout: timeout},
	}
}

// Metadata returns the ontology's release metadata.
func (o *OLSClient) Metadata(ctx context.Context) (*OntologyInfo, error) {
	endpoint := fmt.Sprintf("%s/api/ontologies/%s?lang=en", o.BaseURL, url.PathEscape(o.Ontology))
	body, err := fetch(ctx, o.client, endpoint, "application/json")
	if err != nil {
		return nil, err
	}
	var info OntologyInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, &apperrors.ParseError{Format: "OLS metadata", Path: endpoint, Message: err.Error()}
	}
	return &info, nil
}

type termsPage struct {
	Embedded struct {
		Terms []OLSTerm `json:"terms"`
	} `json:"_embedded"`
	Links map[string]json.RawMessage `json:"_links"`
}

// Terms pages through every term until OLS stops returning a next link.
func (o *OLSClient) Terms(ctx context.Context) ([]OLSTerm, error) {
	var all []OLSTerm
	for page := 0; ; page++ {
		q := url.Values{}
		q.Set("size", strconv.Itoa(o.PageSize))
		q.Set("page", strconv.Itoa(page))
		endpoint := fmt.Sprintf("%s/api/ontologies/%s/terms?%s", o.BaseURL, url.PathEscape(o.Ontology), q.Encode())

		body, err := fetch(ctx, o.client, endpoint, "application/json")
		if err != nil {
			return nil, err
		}
		var p termsPage
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, &apperrors.ParseError{Format: "OLS terms", Path: endpoint, Message: err.Error()}
		}
		if len(p.Embedded.Terms) == 0 {
			return all, nil
		}
		all = append(all, p.Embedded.Terms...)
		if _, ok := p.Links["next"]; !ok {
			return all, nil
		}
	}
}

// ParseTimestamp parses an OLS ISO-8601 timestamp. Fractional seconds
// beyond microseconds are dropped and a missing zone is read as UTC.
func ParseTimestamp(ts string) (time.Time, error) {
	ts = strings.TrimSpace(ts)
	if i := strings.IndexByte(ts, '.'); i >= 0 {
		j := i + 1
		for j < len(ts) && ts[j] >= '0' && ts[j] <= '9' {
			j++
		}
		frac := ts[i+1 : j]
		if len(frac) > 6 {
			frac = frac[:6]
		}
		ts = ts[:i+1] + frac + ts[j:]
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, ts); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", ts)
}

// IsNewer reports whether remote is strictly later than local. Unparseable
// input reports false.
func IsNewer(remote, local string) bool {
	r, err := ParseTimestamp(remote)
	if err != nil {
		return false
	}
	l, err := ParseTimestamp(local)
	if err != nil {
		return false
	}
	return r.After(l)
}
