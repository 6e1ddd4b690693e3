package model

// Lock is the advisory edit lock for one row. Absence of a Lock means the
// row is free; a Lock past ExpiresAt is treated as absent everywhere.
type Lock struct {
	RowID      string `json:"row_id"`
	PageID     string `json:"page_id"`
	DocumentID string `json:"document_id"`
	Holder     string `json:"holder"`
	AcquiredAt int64  `json:"acquired_at"`
	ExpiresAt  int64  `json:"expires_at"`
}
