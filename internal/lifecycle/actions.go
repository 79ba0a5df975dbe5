package lifecycle

import "fmt"

// BranchAction enumerates operations a branch may request on an order.
type BranchAction string

const (
	BranchAccept BranchAction = "accept"
	BranchReady  BranchAction = "ready"
	BranchCancel BranchAction = "cancel"
)

// DriverAction enumerates operations a driver may request on an order.
type DriverAction string

const (
	DriverAccept  DriverAction = "accept"
	DriverReject  DriverAction = "reject"
	DriverPickup  DriverAction = "pickup"
	DriverDepart  DriverAction = "depart"
	DriverDeliver DriverAction = "deliver"
)

// ParseBranchAction validates a raw action string from the API.
func ParseBranchAction(raw string) (BranchAction, error) {
	a := BranchAction(raw)
	switch a {
	case BranchAccept, BranchReady, BranchCancel:
		return a, nil
	}
	return "", fmt.Errorf("unknown branch action %q", raw)
}

// ParseDriverAction validates a raw action string from the API.
func ParseDriverAction(raw string) (DriverAction, error) {
	a := DriverAction(raw)
	switch a {
	case DriverAccept, DriverReject, DriverPickup, DriverDepart, DriverDeliver:
		return a, nil
	}
	return "", fmt.Errorf("unknown driver action %q", raw)
}
