package claim

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidStatus is returned when a stored status lacks the fields its
// lifecycle stage requires.
var ErrInvalidStatus = errors.New("invalid claim status")

const (
	StatusSubmitted = "submitted"
	StatusApproved  = "approved"
	StatusPaid      = "paid"
	StatusDenied    = "denied"
)

// Status is the lifecycle stage of a claim. The set of implementations is
// closed: Submitted, Approved, Paid and Denied.
type Status interface {
	Name() string
	isStatus()
}

type Submitted struct{}

type Approved struct {
	Date time.Time
	Note string
}

type Paid struct {
	ApprovalDate time.Time
	Note         string
	PaidDate     time.Time
}

type Denied struct {
	RejectionDate time.Time
}

func (Submitted) Name() string { return StatusSubmitted }
func (Approved) Name() string  { return StatusApproved }
func (Paid) Name() string      { return StatusPaid }
func (Denied) Name() string    { return StatusDenied }

func (Submitted) isStatus() {}
func (Approved) isStatus()  {}
func (Paid) isStatus()      {}
func (Denied) isStatus()    {}

// NewStatus builds the status variant from its stored columns.
func NewStatus(name string, approvalDate *time.Time, approvalNote *string, paidDate, rejectionDate *time.Time) (Status, error) {
	switch name {
	case StatusSubmitted:
		return Submitted{}, nil
	case StatusApproved:
		if approvalDate == nil || approvalNote == nil {
			return nil, fmt.Errorf("%w: approved claim without approval date or note", ErrInvalidStatus)
		}
		return Approved{Date: *approvalDate, Note: *approvalNote}, nil
	case StatusPaid:
		if approvalDate == nil || approvalNote == nil || paidDate == nil {
			return nil, fmt.Errorf("%w: paid claim without approval date, note or paid date", ErrInvalidStatus)
		}
		return Paid{ApprovalDate: *approvalDate, Note: *approvalNote, PaidDate: *paidDate}, nil
	case StatusDenied:
		if rejectionDate == nil {
			return nil, fmt.Errorf("%w: denied claim without rejection date", ErrInvalidStatus)
		}
		return Denied{RejectionDate: *rejectionDate}, nil
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidStatus, name)
	}
}

// StatusColumns flattens a status back into its stored columns.
func StatusColumns(s Status) (name string, approvalDate *time.Time, approvalNote *string, paidDate, rejectionDate *time.Time) {
	switch v := s.(type) {
	case Approved:
		return StatusApproved, &v.Date, &v.Note, nil, nil
	case Paid:
		return StatusPaid, &v.ApprovalDate, &v.Note, &v.PaidDate, nil
	case Denied:
		return StatusDenied, nil, nil, nil, &v.RejectionDate
	default:
		return StatusSubmitted, nil, nil, nil, nil
	}
}

// IsPaid reports whether the status is Paid.
func IsPaid(s Status) bool {
	_, ok := s.(Paid)
	return ok
}
