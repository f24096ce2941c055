package model

// Source identifies which CRM platform sent a webhook event.
type Source string

const (
	SourceAmoCRM    Source = "amocrm"
	SourceLPTracker Source = "lptracker"
)

func (s Source) Valid() bool {
	return s == SourceAmoCRM || s == SourceLPTracker
}
