package domain

import "time"

// LeadStatus enumerates where a lead is in the prospecting funnel.
type LeadStatus string

const (
	LeadNew       LeadStatus = "new"
	LeadEnriched  LeadStatus = "enriched"
	LeadQualified LeadStatus = "qualified"
	LeadContacted LeadStatus = "contacted"
	LeadReplied   LeadStatus = "replied"
	LeadBlocked   LeadStatus = "blocked"
)

// Lead is a prospect extracted into the organization's pool.
type Lead struct {
	ID              string     `json:"id" db:"id"`
	OrganizationID  string     `json:"organization_id" db:"organization_id"`
	Name            string     `json:"name" db:"name"`
	Phone           string     `json:"phone" db:"phone"`
	Company         string     `json:"company" db:"company"`
	City            string     `json:"city" db:"city"`
	Category        string     `json:"category" db:"category"`
	Website         string     `json:"website" db:"website"`
	Rating          float64    `json:"rating" db:"rating"`
	Reviews         int        `json:"reviews" db:"reviews"`
	Status          LeadStatus `json:"status" db:"status"`
	Score           int        `json:"score" db:"score"`
	DoNotContact    bool       `json:"do_not_contact" db:"do_not_contact"`
	ContactAttempts int        `json:"contact_attempts" db:"contact_attempts"`
	LastContactedAt *time.Time `json:"last_contacted_at" db:"last_contacted_at"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// Contactable reports whether the lead may receive an outbound message.
func (l *Lead) Contactable() bool {
	return l.Phone != "" && !l.DoNotContact && l.Status != LeadBlocked
}

// TemplateVars exposes the lead fields usable in message variants.
func (l *Lead) TemplateVars() map[string]any {
	return map[string]any{
		"name":     l.Name,
		"company":  l.Company,
		"city":     l.City,
		"category": l.Category,
		"website":  l.Website,
		"rating":   l.Rating,
		"reviews":  l.Reviews,
	}
}
