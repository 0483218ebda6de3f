// Package urlparse breaks a url into the parts stored on a web resource.
package urlparse

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/jdholdren/webtrack/internal/webtrack"
)

// Parsed holds the components of a url.
type Parsed struct {
	FullURL     string
	Protocol    string
	Domain      string
	DomainZone  string
	Path        string
	QueryParams webtrack.QueryParams
}

// Parse extracts the protocol, domain, domain zone, path and query params of a url.
//
// The domain zone is only the last label of the host, so "example.co.uk" has a zone of "uk".
func Parse(raw string) (Parsed, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return Parsed{}, fmt.Errorf("%w: %s", webtrack.ErrMalformedURL, err)
	}
	if u.Scheme == "" || u.Host == "" || u.Hostname() == "" {
		return Parsed{}, fmt.Errorf("%w: scheme and host are required", webtrack.ErrMalformedURL)
	}

	params, err := queryParams(u.RawQuery)
	if err != nil {
		return Parsed{}, err
	}

	path := u.Path
	if path == "/" {
		path = ""
	}

	host := u.Hostname()
	labels := strings.Split(strings.TrimSuffix(host, "."), ".")

	return Parsed{
		FullURL:     raw,
		Protocol:    strings.ToLower(u.Scheme),
		Domain:      u.Host,
		DomainZone:  labels[len(labels)-1],
		Path:        path,
		QueryParams: params,
	}, nil
}

// ValidateHTTP parses the url and requires an http or https scheme.
func ValidateHTTP(raw string) (Parsed, error) {
	p, err := Parse(raw)
	if err != nil {
		return Parsed{}, err
	}
	if p.Protocol != "http" && p.Protocol != "https" {
		return Parsed{}, fmt.Errorf("%w: scheme must be http or https", webtrack.ErrMalformedURL)
	}

	return p, nil
}

// url.ParseQuery loses ordering, so the pairs are split by hand.
func queryParams(rawQuery string) (webtrack.QueryParams, error) {
	params := webtrack.QueryParams{}
	for pair := range strings.SplitSeq(rawQuery, "&") {
		if pair == "" {
			continue
		}

		k, v, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(k)
		if err != nil {
			return nil, fmt.Errorf("%w: bad query key %q", webtrack.ErrMalformedURL, k)
		}
		value, err := url.QueryUnescape(v)
		if err != nil {
			return nil, fmt.Errorf("%w: bad query value %q", webtrack.ErrMalformedURL, v)
		}

		params = append(params, webtrack.QueryParam{Key: key, Value: value})
	}

	return params, nil
}
