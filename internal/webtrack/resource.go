package webtrack

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// WebResource is a uniquely registered URL and the parts derived from it.
type WebResource struct {
	ID               int64       `db:"id" json:"id"`
	UUID             string      `db:"uuid" json:"uuid"`
	FullURL          string      `db:"full_url" json:"full_url"`
	Protocol         string      `db:"protocol" json:"protocol"`
	Domain           string      `db:"domain" json:"domain"`
	DomainZone       string      `db:"domain_zone" json:"domain_zone"`
	URLPath          string      `db:"url_path" json:"url_path"`
	QueryParams      QueryParams `db:"query_params" json:"query_params"`
	Screenshot       []byte      `db:"screenshot" json:"screenshot"` // base64 once encoded
	UnavailableCount int         `db:"unavailable_count" json:"unavailable_count"`
	CreatedAt        time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time   `db:"updated_at" json:"updated_at"`
}

type QueryParam struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// QueryParams keeps the order and duplicates of a query string.
// Stored as a JSON column.
type QueryParams []QueryParam

func (qp QueryParams) Value() (driver.Value, error) {
	if qp == nil {
		qp = QueryParams{}
	}
	byts, err := json.Marshal(qp)
	if err != nil {
		return nil, fmt.Errorf("error encoding query params: %w", err)
	}

	return string(byts), nil
}

func (qp *QueryParams) Scan(src any) error {
	return scanJSON(src, qp)
}

// ResourcePage is a resource along with its news feed.
type ResourcePage struct {
	WebResource

	Events []NewsFeedItem `json:"events"`
}

// Shared by the JSON columns.
func scanJSON(src any, dst any) error {
	var byts []byte
	switch v := src.(type) {
	case nil:
		return nil
	case string:
		byts = []byte(v)
	case []byte:
		byts = v
	default:
		return fmt.Errorf("unsupported json column type %T", src)
	}
	if len(byts) == 0 {
		return nil
	}

	if err := json.Unmarshal(byts, dst); err != nil {
		return fmt.Errorf("error decoding json column: %w", err)
	}

	return nil
}
