package domain

import "time"

type ResourceType string

const (
	ResourceDAG       ResourceType = "dag"
	ResourceExecution ResourceType = "execution"
)

func (t ResourceType) Valid() bool {
	return t == ResourceDAG || t == ResourceExecution
}

type ResourceOwnership struct {
	ID           string
	UserID       string
	ResourceType ResourceType
	ResourceID   string
	CreatedAt    time.Time
}
