package main

// ListingObject is one object entry from a bucket listing page. Identity is
// the key; a record is immutable once parsed.
type ListingObject struct {
	Key          string `json:"key"`
	Size         int64  `json:"size"`
	LastModified string `json:"last_modified"`
}

// ListingPage is the decoded form of a single listing response. It is
// transient: the fetcher merges its objects and drops the page.
type ListingPage struct {
	Objects               []ListingObject
	IsTruncated           bool
	NextMarker            string
	NextContinuationToken string
}

type AggregateStats struct {
	Files        int64     `json:"files"`
	SizeBytes    int64     `json:"size_bytes"`
	SizeGb       float64   `json:"size_gb"`
	LatestUpdate *DateTime `json:"latest_update"`
}

type TableStats struct {
	Table    string `json:"table"`
	Endpoint string `json:"endpoint"`
	AggregateStats
}

type ExportSource struct {
	Origin     string   `json:"origin"`
	Prefix     string   `json:"prefix"`
	ListingUrl string   `json:"listing_url"`
	Pages      int      `json:"pages"`
	PageUrls   []string `json:"page_urls"`
}

type ExportStats struct {
	GeneratedAt      DateTime       `json:"generated_at"`
	Source           ExportSource   `json:"source"`
	Totals           AggregateStats `json:"totals"`
	Tables           []TableStats   `json:"tables"`
	DownloadCommands []string       `json:"download_commands"`
}

// DailyPoint is one day of the verified contracts series. Days are unique
// after merging; duplicate input rows are summed, not overwritten.
type DailyPoint struct {
	Day   string `json:"day"`
	Count int64  `json:"count"`
}

type DailySummary struct {
	Total       int64   `json:"total"`
	LatestDay   *string `json:"latest_day"`
	LatestCount *int64  `json:"latest_count"`
	Average7d   float64 `json:"average_7d"`
	Average30d  float64 `json:"average_30d"`
}

type DailyCounts struct {
	Series  []DailyPoint `json:"series"`
	Summary DailySummary `json:"summary"`
}
