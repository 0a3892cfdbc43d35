package graph

import (
	"fmt"
	"strings"

	"github.com/tallyward/ledgercore/internal/models"
)

// IntegrityReport summarizes the health of the debt graph.
type IntegrityReport struct {
	// SelfReferences counts records whose payer also appears as a
	// participant (see DetectSelfReference).
	SelfReferences int `json:"self_references"`

	// OrphanEdges counts debt edges dropped because an endpoint person no
	// longer exists in the store.
	OrphanEdges int `json:"orphan_edges"`

	// Cycle is the first cycle found, nil when the graph is acyclic.
	Cycle *CyclePath `json:"cycle,omitempty"`

	// CycleDescription renders Cycle with person names,
	// e.g. "Alice → Bob → Carol → Alice, $30.00".
	CycleDescription string `json:"cycle_description,omitempty"`

	// CircularGroups lists every strongly connected component with more
	// than one member — groups of people with mutual circular debts that a
	// caller can offer to net out.
	CircularGroups [][]string `json:"circular_groups,omitempty"`

	// SCCSizes holds the sizes of CircularGroups, largest first.
	SCCSizes []int `json:"scc_sizes,omitempty"`
}

// Report builds the integrity summary for the graph's snapshot.
func (g *DebtGraph) Report() (*IntegrityReport, error) {
	r := &IntegrityReport{OrphanEdges: g.orphanEdges}

	for _, e := range g.snap.Expenses {
		if DetectSelfReference(e) {
			r.SelfReferences++
		}
	}
	for _, b := range g.snap.SplitBills {
		if DetectSelfReference(b) {
			r.SelfReferences++
		}
	}
	for _, t := range g.snap.Transactions {
		if DetectSelfReference(t) {
			r.SelfReferences++
		}
	}

	cycle, err := g.DetectCycle()
	if err != nil {
		return nil, err
	}
	if cycle != nil {
		r.Cycle = cycle
		r.CycleDescription = g.describePath(cycle)
	}

	components, err := g.StronglyConnectedComponents()
	if err != nil {
		return nil, err
	}
	for _, component := range components {
		if len(component) > 1 {
			r.CircularGroups = append(r.CircularGroups, component)
		}
	}
	// largest first
	for i := 0; i < len(r.CircularGroups); i++ {
		for j := i + 1; j < len(r.CircularGroups); j++ {
			if len(r.CircularGroups[j]) > len(r.CircularGroups[i]) {
				r.CircularGroups[i], r.CircularGroups[j] = r.CircularGroups[j], r.CircularGroups[i]
			}
		}
	}
	for _, c := range r.CircularGroups {
		r.SCCSizes = append(r.SCCSizes, len(c))
	}
	return r, nil
}

func (g *DebtGraph) describePath(cycle *CyclePath) string {
	names := make([]string, len(cycle.Persons))
	for i, id := range cycle.Persons {
		names[i] = g.personName(id)
	}
	return fmt.Sprintf("%s, $%s", strings.Join(names, " → "), cycle.Total.StringFixed(2))
}

func (g *DebtGraph) personName(id string) string {
	if p, ok := g.snap.Get(models.EntityPerson, id); ok {
		if person, ok := p.(*models.Person); ok && person.Name != "" {
			return person.Name
		}
	}
	return id
}
