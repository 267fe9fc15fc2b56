// Package model defines the shared data types flowing through the watcher.
package model

import "time"

// Category tags supported by the search filter. Size filtering only applies
// to clothing; everything else is matched as-is.
const (
	CategoryClothing = "Clothing"
	CategoryOther    = "Other"
)

// Gender facets used to scope the remote catalog query.
const (
	GenderMen   = "Men"
	GenderWomen = "Women"
)

// Filter is the immutable predicate attached to a saved search.
type Filter struct {
	Query    string
	Sizes    []string
	Gender   string
	Category string
}

// Search is one saved search specification plus its run statistics. The
// statistics are mutated by the scheduler after each cycle; everything else
// is fixed at construction.
type Search struct {
	ChatID  int64
	Name    string
	Enabled bool
	Filter  Filter

	LastRun    time.Time
	ItemsFound int
}

// Listing is a single catalog item as returned by the remote API. The
// watcher never mutates listings.
type Listing struct {
	ID     int64   `json:"id"`
	Title  string  `json:"title"`
	Price  Price   `json:"price"`
	Size   string  `json:"size_title"`
	Brand  string  `json:"brand_title"`
	Status string  `json:"status"`
	User   User    `json:"user"`
	Photos []Photo `json:"photos"`
}

// Price carries the listing price as the API reports it. Amount stays a
// string so fingerprints and messages reproduce the remote value exactly.
type Price struct {
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currency_code"`
}

// User identifies the seller.
type User struct {
	Login string `json:"login"`
}

// Photo is one listing photo.
type Photo struct {
	URL string `json:"url"`
}
