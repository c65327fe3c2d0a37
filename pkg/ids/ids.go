// Package ids generates the sortable identifiers embedded in order documents.
package ids

import (
	"github.com/oklog/ulid/v2"
)

const (
	ReturnPrefix = "ret_"
	RefundPrefix = "rf_"
)

// Generator produces prefixed ids. Tests swap it for a deterministic one.
type Generator interface {
	NewReturnID() string
	NewRefundID() string
}

// ULIDGenerator is the production Generator.
type ULIDGenerator struct{}

func (ULIDGenerator) NewReturnID() string { return ReturnPrefix + ulid.Make().String() }
func (ULIDGenerator) NewRefundID() string { return RefundPrefix + ulid.Make().String() }
