package core

import "arboria/pkg/domain"

type (
	EntityType         = domain.EntityType
	Severity           = domain.Severity
	Farm               = domain.Farm
	Tree               = domain.Tree
	Intervention       = domain.Intervention
	InterventionType   = domain.InterventionType
	Health             = domain.Health
	Photo              = domain.Photo
	GeoPoint           = domain.GeoPoint
	Date               = domain.Date
	Document           = domain.Document
	ValidationReport   = domain.ValidationReport
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	Rule               = domain.Rule
	RuleView           = domain.RuleView
	RulesEngine        = domain.RulesEngine
)

const (
	EntityFarm         = domain.EntityFarm
	EntityTree         = domain.EntityTree
	EntityIntervention = domain.EntityIntervention
	EntityPhoto        = domain.EntityPhoto
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)

// NewRulesEngine constructs an empty rules engine.
func NewRulesEngine() *RulesEngine { return domain.NewRulesEngine() }
