// Package workflow holds the status transition tables of the procurement
// documents. It performs no I/O and knows nothing about side effects.
package workflow

import (
	"fmt"
	"sort"
	"strings"

	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

// Kind identifies a document type.
type Kind string

const (
	KindPR     Kind = "PR"
	KindPO     Kind = "PO"
	KindGR     Kind = "GR"
	KindReturn Kind = "RETURN"
	KindBill   Kind = "BILL"
)

// Entity returns the name used in error messages.
func (k Kind) Entity() string {
	switch k {
	case KindPR:
		return "purchase request"
	case KindPO:
		return "purchase order"
	case KindGR:
		return "goods receipt"
	case KindReturn:
		return "purchase return"
	case KindBill:
		return "vendor bill"
	}
	return strings.ToLower(string(k))
}

// Status is an uppercase status token.
type Status string

// Statuses shared by several kinds are declared once.
const (
	Draft             Status = "DRAFT"
	Submitted         Status = "SUBMITTED"
	Approved          Status = "APPROVED"
	Rejected          Status = "REJECTED"
	Converted         Status = "CONVERTED"
	Cancelled         Status = "CANCELLED"
	Sent              Status = "SENT"
	Confirmed         Status = "CONFIRMED"
	PartiallyReceived Status = "PARTIALLY_RECEIVED"
	FullyReceived     Status = "FULLY_RECEIVED"
	Invoiced          Status = "INVOICED"
	Closed            Status = "CLOSED"
	Pending           Status = "PENDING"
	Partial           Status = "PARTIAL"
	Completed         Status = "COMPLETED"
	Processed         Status = "PROCESSED"
	PartiallyPaid     Status = "PARTIALLY_PAID"
	Paid              Status = "PAID"
)

// Reason explains a rejected transition.
type Reason string

const (
	ReasonNone          Reason = ""
	ReasonUnknownStatus Reason = "unknown_status"
	ReasonIllegal       Reason = "illegal"
	ReasonTerminal      Reason = "terminal"
	ReasonForbidden     Reason = "forbidden"
)

// Decision is the outcome of Check.
type Decision struct {
	Allowed bool
	Reason  Reason
	// Required lists the permissions that would authorise the edge when the
	// reason is ReasonForbidden.
	Required []string
}

type edge struct {
	to    Status
	perms []string
}

type table struct {
	states   []Status
	edges    map[Status][]edge
	terminal map[Status]bool
}

// Engine evaluates transitions against static tables.
type Engine struct {
	tables map[Kind]table
}

// New returns an Engine with the procurement tables.
func New() *Engine {
	return &Engine{tables: map[Kind]table{
		KindPR:     prTable(),
		KindPO:     poTable(),
		KindGR:     grTable(),
		KindReturn: returnTable(),
		KindBill:   billTable(),
	}}
}

func on(perms ...string) []string { return perms }

func prTable() table {
	edit, approve, cancel := on(shared.PermProcurementEdit), on(shared.PermProcurementApprove), on(shared.PermProcurementCancel)
	return table{
		states: []Status{Draft, Submitted, Approved, Rejected, Converted, Cancelled},
		edges: map[Status][]edge{
			Draft:     {{Submitted, edit}, {Cancelled, cancel}},
			Submitted: {{Approved, approve}, {Rejected, approve}, {Cancelled, cancel}},
			Approved:  {{Converted, edit}, {Cancelled, cancel}},
			Rejected:  {{Submitted, edit}, {Cancelled, cancel}},
		},
		terminal: map[Status]bool{Converted: true, Cancelled: true},
	}
}

func poTable() table {
	edit, approve, cancel := on(shared.PermProcurementEdit), on(shared.PermProcurementApprove), on(shared.PermProcurementCancel)
	receive := on(shared.PermProcurementReceive)
	return table{
		states: []Status{Draft, Submitted, Approved, Sent, Confirmed, PartiallyReceived, FullyReceived, Invoiced, Closed, Cancelled},
		edges: map[Status][]edge{
			Draft:             {{Submitted, edit}, {Approved, approve}, {Cancelled, cancel}},
			Submitted:         {{Approved, approve}, {Cancelled, cancel}},
			Approved:          {{Sent, edit}, {Cancelled, cancel}, {PartiallyReceived, receive}, {FullyReceived, receive}},
			Sent:              {{Confirmed, edit}, {Cancelled, cancel}, {PartiallyReceived, receive}, {FullyReceived, receive}},
			Confirmed:         {{PartiallyReceived, receive}, {FullyReceived, receive}, {Cancelled, cancel}},
			PartiallyReceived: {{PartiallyReceived, receive}, {FullyReceived, receive}, {Cancelled, cancel}},
			FullyReceived:     {{Invoiced, on(shared.PermBillsEdit)}, {Closed, edit}},
			Invoiced:          {{Closed, on(shared.PermProcurementEdit, shared.PermBillsPay)}},
		},
		terminal: map[Status]bool{Closed: true, Cancelled: true},
	}
}

func grTable() table {
	receive := on(shared.PermProcurementReceive)
	return table{
		states: []Status{Pending, Partial, Completed},
		edges: map[Status][]edge{
			Pending: {{Partial, receive}, {Completed, receive}},
			Partial: {{Completed, receive}},
		},
		terminal: map[Status]bool{Completed: true},
	}
}

func returnTable() table {
	cancel := on(shared.PermProcurementCancel)
	return table{
		states: []Status{Pending, Approved, Processed, Cancelled},
		edges: map[Status][]edge{
			Pending:  {{Approved, on(shared.PermProcurementApprove)}, {Cancelled, cancel}},
			Approved: {{Processed, on(shared.PermProcurementEdit)}, {Cancelled, cancel}},
		},
		terminal: map[Status]bool{Processed: true, Cancelled: true},
	}
}

func billTable() table {
	pay, edit := on(shared.PermBillsPay), on(shared.PermBillsEdit)
	return table{
		states: []Status{Pending, PartiallyPaid, Paid, Cancelled},
		edges: map[Status][]edge{
			Pending:       {{PartiallyPaid, pay}, {Paid, pay}, {Cancelled, edit}},
			PartiallyPaid: {{PartiallyPaid, pay}, {Paid, pay}, {Cancelled, edit}},
		},
		terminal: map[Status]bool{Paid: true, Cancelled: true},
	}
}

// Normalize canonicalises a raw status token. RECEIVED is accepted for
// purchase orders as an alias of FULLY_RECEIVED.
func Normalize(kind Kind, raw string) Status {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	if kind == KindPO && s == "RECEIVED" {
		return FullyReceived
	}
	return s
}

// Valid reports whether status belongs to kind.
func (e *Engine) Valid(kind Kind, status Status) bool {
	t, ok := e.tables[kind]
	if !ok {
		return false
	}
	for _, s := range t.states {
		if s == status {
			return true
		}
	}
	return false
}

// Terminal reports whether status has no outgoing edges.
func (e *Engine) Terminal(kind Kind, status Status) bool {
	return e.tables[kind].terminal[status]
}

// States lists the statuses of kind in lifecycle order.
func (e *Engine) States(kind Kind) []Status {
	return append([]Status(nil), e.tables[kind].states...)
}

// Next lists the statuses reachable from status in one step.
func (e *Engine) Next(kind Kind, status Status) []Status {
	var out []Status
	for _, ed := range e.tables[kind].edges[status] {
		out = append(out, ed.to)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Check decides whether an actor holding perms may move a document of kind
// from one status to another.
func (e *Engine) Check(kind Kind, from, to Status, perms []string) Decision {
	t, ok := e.tables[kind]
	if !ok || !e.Valid(kind, from) || !e.Valid(kind, to) {
		return Decision{Reason: ReasonUnknownStatus}
	}
	if t.terminal[from] {
		return Decision{Reason: ReasonTerminal}
	}
	for _, ed := range t.edges[from] {
		if ed.to != to {
			continue
		}
		for _, need := range ed.perms {
			for _, have := range perms {
				if have == need {
					return Decision{Allowed: true}
				}
			}
		}
		return Decision{Reason: ReasonForbidden, Required: ed.perms}
	}
	return Decision{Reason: ReasonIllegal}
}

// Authorize runs Check and converts a rejection into an application error.
func (e *Engine) Authorize(kind Kind, from, to Status, perms []string) error {
	d := e.Check(kind, from, to, perms)
	if d.Allowed {
		return nil
	}
	return d.Err(kind, from, to)
}

// Err converts a rejected decision into an application error. It returns nil
// for an allowed decision.
func (d Decision) Err(kind Kind, from, to Status) error {
	switch d.Reason {
	case ReasonNone:
		return nil
	case ReasonUnknownStatus:
		return shared.Validation(fmt.Sprintf("unknown %s status transition %s -> %s", kind.Entity(), from, to),
			shared.FieldError{Field: "status", Reason: "unknown status"})
	case ReasonForbidden:
		return shared.Forbidden(fmt.Sprintf("%s %s -> %s requires %s", kind.Entity(), from, to, strings.Join(d.Required, " or ")))
	case ReasonTerminal:
		return shared.IllegalTransition(kind.Entity(), string(from), string(to), "status is terminal")
	default:
		return shared.IllegalTransition(kind.Entity(), string(from), string(to), "transition not allowed")
	}
}
