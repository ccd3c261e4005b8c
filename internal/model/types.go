package model

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// announcementNS is the UUID namespace for announcement identities.
// Derived once from a fixed URL-namespace name so IDs are stable across runs.
var announcementNS = uuid.NewSHA1(uuid.NameSpaceURL, []byte("bsewatch/announcement"))

// RawAnnouncement is a single record as returned by the BSE announcements
// API. Field names follow the provider's JSON; the record is immutable once
// received.
type RawAnnouncement struct {
	NewsID      string `json:"NEWSID"`       // Provider news identifier
	ScripCode   int64  `json:"SCRIP_CD"`     // Numeric instrument code
	CompanyName string `json:"SLONGNAME"`    // Company long name
	Subject     string `json:"NEWSSUB"`      // Subject / subcategory line
	Headline    string `json:"HEADLINE"`     // Headline text
	More        string `json:"MORE"`         // Free-text detail field
	NewsDate    string `json:"NEWS_DT"`      // Provider timestamp string
	DetailURL   string `json:"NSURL"`        // Detail page URL
	Category    string `json:"CATEGORYNAME"` // Provider category
	Attachment  string `json:"ATTACHMENTNAME,omitempty"`
}

// CompositeKey returns the tuple of fields that determine this record's
// identity, joined into a single string.
func (r RawAnnouncement) CompositeKey() string {
	return strings.Join([]string{
		strconv.FormatInt(r.ScripCode, 10),
		r.NewsID,
		r.NewsDate,
		r.Subject,
	}, "|")
}

// ID derives the stable announcement identity from the composite key.
func (r RawAnnouncement) ID() uuid.UUID {
	return uuid.NewSHA1(announcementNS, []byte(r.CompositeKey()))
}

// Announcement is a normalized feed record.
type Announcement struct {
	ID          uuid.UUID // Deterministic identity (composite key)
	ScripCode   int64     // Numeric instrument code
	CompanyName string    // Company long name
	Subject     string    // Subject line
	Headline    string    // Headline text
	More        string    // Free-text detail field
	NewsDate    string    // Provider timestamp string (kept verbatim)
	DetailURL   string    // Detail page URL
	Category    string    // Provider category

	ReceivedAt time.Time // Local time the containing batch was obtained
	Amount     string    // Extracted order-value display string, "" if none
	Symbol     string    // Extracted trading symbol, "" if none
	IsNew      bool      // True only for records unseen in this process
}

// Batch is one poll's worth of raw records, newest-first.
type Batch struct {
	PolledAt time.Time // Local retrieval timestamp, shared by all records
	Records  []RawAnnouncement
}

// PriceQuote is the result of a price lookup for one instrument.
type PriceQuote struct {
	Price     float64   // Quoted price; <= 0 means unresolvable
	Source    string    // Which lookup shape produced the value
	FetchedAt time.Time // Lookup time (cache entries age from this)
}

// Resolved reports whether the quote carries a usable price.
func (q PriceQuote) Resolved() bool {
	return q.Price > 0
}

// OrderRequest is the structured request passed to the broker collaborator.
type OrderRequest struct {
	Symbol          string `json:"tradingsymbol"`
	Exchange        string `json:"exchange"`         // NSE or BSE
	Quantity        int64  `json:"quantity"`
	TransactionType string `json:"transaction_type"` // BUY or SELL
	OrderType       string `json:"order_type"`       // MARKET or LIMIT
	Product         string `json:"product"`          // CNC for delivery
	Validity        string `json:"validity,omitempty"`
}

// OrderResult is the broker's response to a placed order.
type OrderResult struct {
	OrderID string `json:"order_id"`
	Message string `json:"message,omitempty"`
}
