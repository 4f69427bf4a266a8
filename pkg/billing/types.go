package billing

import "time"

// Bill collects the positions charged to a project. A bill is open until
// it is closed; closing freezes its final amount.
type Bill struct {
	ID          int64      `json:"id"`
	ProjectID   int64      `json:"project_id"`
	Title       string     `json:"title"`
	CreatedAt   time.Time  `json:"created_at"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
	FinalAmount *float64   `json:"final_amount,omitempty"`
}

// Closed reports whether the bill has been closed
func (b *Bill) Closed() bool {
	return b.ClosedAt != nil
}

// BillPosition is one line item of a bill
type BillPosition struct {
	ID     int64   `json:"id"`
	BillID int64   `json:"bill_id"`
	Title  string  `json:"title"`
	Cost   float64 `json:"cost"`
}

// Total sums the costs of positions starting from zero
func Total(positions []*BillPosition) float64 {
	var sum float64
	for _, p := range positions {
		sum += p.Cost
	}
	return sum
}
