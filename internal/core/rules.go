package core

// NewDefaultRulesEngine builds a rules engine with the built-in grid policy set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	for _, rule := range defaultRules() {
		engine.Register(rule)
	}
	return engine
}

func defaultRules() []Rule {
	return []Rule{
		NewGridBoundsRule(),
		NewCellUniquenessRule(),
		NewDeadTreeInterventionRule(),
	}
}
