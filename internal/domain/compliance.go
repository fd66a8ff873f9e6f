package domain

import (
	"fmt"
	"time"
)

// ComplianceStatus walks Missing -> PendingReview -> Approved with no skips
// and no reverse once Approved.
type ComplianceStatus string

const (
	ComplianceMissing       ComplianceStatus = "missing"
	CompliancePendingReview ComplianceStatus = "pending_review"
	ComplianceApproved      ComplianceStatus = "approved"
)

// ComplianceChecklistItem is one required document on a deal, keyed by the
// rule that derived it plus the document name.
type ComplianceChecklistItem struct {
	ID             string
	DealID         string
	DocumentName   string
	Status         ComplianceStatus
	SourceRule     string
	DocumentHandle string
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// complianceNext is the only permitted forward step per status.
var complianceNext = map[ComplianceStatus]ComplianceStatus{
	ComplianceMissing:       CompliancePendingReview,
	CompliancePendingReview: ComplianceApproved,
}

// Advance moves the item one step forward. Any other move, including
// regressing an approved item, fails with ErrInvalidStatus.
func (c *ComplianceChecklistItem) Advance(target ComplianceStatus, at time.Time) error {
	if complianceNext[c.Status] != target {
		return fmt.Errorf("%w: compliance item %s cannot move %s -> %s",
			ErrInvalidStatus, c.ID, c.Status, target)
	}
	c.Status = target
	c.UpdatedAt = at.UTC()
	return nil
}
