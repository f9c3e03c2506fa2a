package models

type Booking struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartTime Timestamp `json:"start_time"`
	EndTime   Timestamp `json:"end_time"`
	Studio    string    `json:"studio"`
	Location  string    `json:"location"`
	Status    string    `json:"status"`
	Price     *float64  `json:"price"`
	RecordURL string    `json:"record_url"`
	LastSeen  Timestamp `json:"last_seen"`
}
