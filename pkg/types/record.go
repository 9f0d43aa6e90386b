package types

// Record is one uniquely keyed row of the list. ID and Name are stored and
// compared byte for byte.
type Record struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
