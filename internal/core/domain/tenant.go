package domain

import "time"

type TenantStatus string

const (
	TenantActive    TenantStatus = "active"
	TenantSuspended TenantStatus = "suspended"
	TenantPending   TenantStatus = "pending"
)

func (s TenantStatus) Valid() bool {
	switch s {
	case TenantActive, TenantSuspended, TenantPending:
		return true
	}
	return false
}

type Plan string

const (
	PlanFree       Plan = "free"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

func (p Plan) Valid() bool {
	switch p {
	case PlanFree, PlanPro, PlanEnterprise:
		return true
	}
	return false
}

type Quotas struct {
	MaxUsers              int   `json:"maxUsers"`
	MaxAgents             int   `json:"maxAgents"`
	MaxExecutionsPerMonth int   `json:"maxExecutionsPerMonth"`
	MaxTokensPerMonth     int64 `json:"maxTokensPerMonth"`
}

// DefaultQuotas returns the quotas a tenant gets on plan when nothing is
// overridden. Zero means unlimited.
func DefaultQuotas(plan Plan) Quotas {
	switch plan {
	case PlanPro:
		return Quotas{MaxUsers: 25, MaxAgents: 20, MaxExecutionsPerMonth: 5000, MaxTokensPerMonth: 10_000_000}
	case PlanEnterprise:
		return Quotas{MaxUsers: 0, MaxAgents: 0, MaxExecutionsPerMonth: 0, MaxTokensPerMonth: 0}
	default:
		return Quotas{MaxUsers: 3, MaxAgents: 2, MaxExecutionsPerMonth: 100, MaxTokensPerMonth: 100_000}
	}
}

type Tenant struct {
	ID        string
	Name      string
	Slug      string
	Status    TenantStatus
	Plan      Plan
	Quotas    Quotas
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (t Tenant) Active() bool {
	return t.Status == TenantActive
}

// TenantPatch carries the fields of an update; nil fields are left untouched.
type TenantPatch struct {
	Name   *string
	Status *TenantStatus
	Plan   *Plan
	Quotas *Quotas
}

type TenantFilter struct {
	Status *TenantStatus
	Plan   *Plan
	Limit  int
	Offset int
}
