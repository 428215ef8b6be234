package models

// StatusRequest selects the symbol whose live state is reported.
type StatusRequest struct {
	Symbol string `query:"symbol"`
}

// HistoryRequest pages through journaled decisions or trade events.
type HistoryRequest struct {
	Symbol string `query:"symbol"`
	Limit  int    `query:"limit" default:"50" validate:"min=1,max=500"`
}

// StatusResponse is the live view served by the status API.
type StatusResponse struct {
	Symbol       string           `json:"symbol"`
	Account      *AccountSnapshot `json:"account,omitempty"`
	LastDecision *DecisionRecord  `json:"last_decision,omitempty"`
}
