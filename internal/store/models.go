// Package store persists published post records in Postgres.
package store

import (
	"encoding/json"
	"time"
)

// Post is a saved blog post record. Content is the rich-text document JSON
// with every image reference already rewritten to a final URL.
type Post struct {
	ID               string
	Title            string
	Slug             string
	Excerpt          string
	Content          json.RawMessage
	FeaturedImageURL string
	Tags             []string
	Categories       []string
	SEOTitle         string
	SEODescription   string
	Status           string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
