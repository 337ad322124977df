package status

// Aggregate returns the plant-wide severity: the most severe member, or Operational
// when there are no machines. Input order never affects the result.
func Aggregate(machines []MachineHealth) Severity {
	plant := Operational
	for _, m := range machines {
		plant = Max(plant, m.Severity())
		if plant == Critical {
			break
		}
	}
	return plant
}

// Counts is the number of machines at each severity.
type Counts map[Severity]int

// Count tallies machines per severity. Every level is present, possibly with zero.
func Count(machines []MachineHealth) Counts {
	counts := Counts{}
	for _, s := range Severities {
		counts[s] = 0
	}
	for _, m := range machines {
		counts[m.Severity()]++
	}
	return counts
}
