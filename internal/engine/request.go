package engine

import "github.com/ai4data/dazense/internal/dataset"

// Filter is one conjunct of a metric query's WHERE clause. Operator
// defaults to "eq" when empty.
type Filter struct {
	Column   string `json:"column"`
	Operator string `json:"operator,omitempty"`
	Value    any    `json:"value"`
}

// Order is one key of a multi-key sort. Ascending defaults to true
// when omitted.
type Order struct {
	Column    string `json:"column"`
	Ascending *bool  `json:"ascending,omitempty"`
}

func (o Order) ascending() bool {
	return o.Ascending == nil || *o.Ascending
}

// Request is a metric query against a named model.
type Request struct {
	Model      string   `json:"model"`
	Measures   []string `json:"measures,omitempty"`
	Dimensions []string `json:"dimensions,omitempty"`
	Filters    []Filter `json:"filters,omitempty"`
	OrderBy    []Order  `json:"order_by,omitempty"`
	Limit      *int     `json:"limit,omitempty"`
}

// Result is the normalized tabular output of a query. Columns lists
// output names in projection order: dimensions first, then measures,
// each in request order.
type Result struct {
	Columns []string      `json:"columns"`
	Rows    []dataset.Row `json:"rows"`
}
