package models

// UsageRecord is one usage-detail row from the billing API
type UsageRecord struct {
	Name          string
	MeterCategory string
	Cost          float64
}

// CostItem is the total cost of one (name, meter category) pair
type CostItem struct {
	Name          string  `json:"name"`
	MeterCategory string  `json:"meterCategory"`
	Cost          float64 `json:"cost"`
}

// CostReport is the grouped cost of a subscription over a window
type CostReport struct {
	// Range is an ISO 8601 interval, start/end
	Range string     `json:"range"`
	Days  int        `json:"days"`
	Total float64    `json:"total"`
	Items []CostItem `json:"items"`
}
