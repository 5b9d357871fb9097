package finance

// PriceBar is one daily bar of an adjusted price series. Date is an ISO
// calendar day (UTC); AdjustedClose is always positive in loaded series.
type PriceBar struct {
	Symbol        string  `json:"symbol"`
	Date          string  `json:"date"`
	AdjustedClose float64 `json:"adjusted_close"`
}
