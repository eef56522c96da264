package models

import "fmt"

// Operation identifies which classification overlay drives a workspace
type Operation string

const (
	OperationSAD        Operation = "sad"
	OperationBaseline   Operation = "baseline"
	OperationTimeSeries Operation = "time_series"
	OperationNone       Operation = "null"
)

// ParseOperation validates an operation name as it appears in cell URLs
func ParseOperation(s string) (Operation, error) {
	switch op := Operation(s); op {
	case OperationSAD, OperationBaseline, OperationTimeSeries, OperationNone:
		return op, nil
	case "":
		return OperationNone, nil
	}
	return "", fmt.Errorf("unknown operation %q", s)
}

func (o Operation) String() string {
	return string(o)
}
