package model

// ImportRecord is the shape sent to the ledger for one AccountTransaction.
// Exactly one of PayeeName and Payee is set.
type ImportRecord struct {
	ImportedID string `json:"imported_id"`
	Date       string `json:"date"` // YYYY-MM-DD
	PayeeName  string `json:"payee_name,omitempty"`
	Payee      string `json:"payee,omitempty"` // ledger payee id, used for transfers
	Amount     int64  `json:"amount"`          // minor units
	Notes      string `json:"notes,omitempty"`
	Cleared    bool   `json:"cleared"`
	Category   string `json:"category,omitempty"` // ledger category id
}
