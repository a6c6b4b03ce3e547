package domain

import "context"

// RecipientPage is one page of a full recipient-store scan. An empty
// NextToken signals the end of the scan.
type RecipientPage struct {
	Profiles  []RecipientProfile
	NextToken string
}

// RecipientStore is the durable profile store. Scans must be resumable via
// the opaque continuation token; MarkAlerted is a point update.
type RecipientStore interface {
	ScanPage(ctx context.Context, startToken string, limit int) (RecipientPage, error)
	MarkAlerted(ctx context.Context, contactID, date string) error
}

// ForecastProvider fetches the daily forecast for a coordinate pair.
type ForecastProvider interface {
	DailyForecast(ctx context.Context, lat, lon float64) (DailyForecast, error)
}

// SnippetRetriever fetches up to k supporting snippets for a query and
// returns their concatenated text.
type SnippetRetriever interface {
	Retrieve(ctx context.Context, query string, k int) (string, error)
}

// AdviceGenerator drafts advisory text from a prompt.
type AdviceGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// SMSSender dispatches one message through the SMS gateway.
type SMSSender interface {
	Send(ctx context.Context, phone, message string) error
}
