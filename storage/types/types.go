package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Scale is the fixed-point factor applied to every stored rate
const Scale int64 = 10000

var ErrInvalidSource = errors.New("invalid source")

type Source string

const (
	// SourceBCV is the official authority (BCV) spreadsheet series
	SourceBCV Source = "BCV"

	// SourceParalelo is the parallel market channel announcement series
	SourceParalelo Source = "paralelo"
)

// Sources lists every known source, in display order
var Sources = []Source{SourceBCV, SourceParalelo}

func (s Source) String() string {
	return string(s)
}

// ParseSource maps the storage / wire name to a known source
func ParseSource(v string) (Source, error) {
	v = strings.TrimSpace(v)

	for _, s := range Sources {
		if strings.EqualFold(v, s.String()) {
			return s, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrInvalidSource, v)
}

// Observation is a single fixed-point USD/VES rate data point.
// Rate is the price of one dollar in bolivars, multiplied by Scale
type Observation struct {
	Time   time.Time `json:"time"`
	Source Source    `json:"source"`
	Rate   int64     `json:"rate"`
}

// Float returns the rate in whole bolivars, for display only
func (o *Observation) Float() float64 {
	return float64(o.Rate) / float64(Scale)
}

// Cursor is the per-source ingestion metadata
type Cursor struct {
	// LastFetchedID is the newest ingested message ID, nil meaning "from the beginning"
	LastFetchedID *int64 `json:"last_fetched_id"`

	// LastUpdate is the time of the most recent successful ingestion run
	LastUpdate time.Time `json:"last_update"`
}

// Batch is the result of a single provider run
type Batch struct {
	// NewCursor is the candidate cursor, nil if the source yielded nothing new
	NewCursor *int64

	Source       Source
	Observations []*Observation

	// Skipped is the number of records that could not be parsed
	Skipped int
}

// Metadata keys
const (
	MetaLastUpdate    = "last_update"
	MetaLastFetchedID = "last_fetched_id"
)
