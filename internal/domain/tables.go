package domain

var Tables = []interface{}{
	// Topology
	&Service{},
	&Dependency{},
	// Observations
	&ServiceData{},
	// Resilience
	&Specification{},
	&Assessment{},
}
