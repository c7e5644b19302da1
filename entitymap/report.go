package entitymap

// Report is the serializable view of a booted entity map, consumed by
// tooling (the relorm inspect command) and exported by the mapper directory.
type Report struct {
	Class       string           `json:"class"`
	Mapping     string           `json:"mapping"`
	Table       string           `json:"table"`
	PrimaryKey  string           `json:"primary_key"`
	Attributes  []string         `json:"attributes"`
	Embeddables []string         `json:"embeddables,omitempty"`
	EagerLoads  []string         `json:"eager_loads,omitempty"`
	Relations   []RelationReport `json:"relations"`
}

// RelationReport is the per-relation slice of a Report: the kind plus the
// four classification axes and the resolved key and table names.
type RelationReport struct {
	Name            string `json:"name"`
	Kind            string `json:"kind"`
	Cardinality     string `json:"cardinality,omitempty"`
	KeyOwnership    string `json:"key_ownership,omitempty"`
	Target          string `json:"target,omitempty"`
	Through         string `json:"through,omitempty"`
	ForeignKey      string `json:"foreign_key,omitempty"`
	LocalKey        string `json:"local_key,omitempty"`
	OtherKey        string `json:"other_key,omitempty"`
	SecondKey       string `json:"second_key,omitempty"`
	PivotTable      string `json:"pivot_table,omitempty"`
	MorphType       string `json:"morph_type,omitempty"`
	MorphID         string `json:"morph_id,omitempty"`
	Pivot           bool   `json:"pivot,omitempty"`
	Polymorphic     bool   `json:"polymorphic,omitempty"`
	Embedded        bool   `json:"embedded,omitempty"`
	Eager           bool   `json:"eager,omitempty"`
	ProxyIneligible bool   `json:"proxy_ineligible,omitempty"`
	Dynamic         bool   `json:"dynamic,omitempty"`
}

// Report snapshots the map's classification state.
func (m *Map) Report() Report {
	m.mu.RLock()
	defer m.mu.RUnlock()

	report := Report{
		Class:       m.class,
		Mapping:     m.mapping,
		Table:       m.table,
		PrimaryKey:  m.primaryKey,
		Attributes:  copyStrings(m.attributes),
		Embeddables: copyStrings(m.embeddables),
		EagerLoads:  copyStrings(m.eager),
		Relations:   make([]RelationReport, 0, len(m.order)),
	}

	for _, name := range m.order {
		rel := m.relations[name]
		rr := RelationReport{
			Name:            rel.Name,
			Kind:            rel.Kind.String(),
			Target:          rel.TargetClass(),
			ForeignKey:      rel.ForeignKey,
			LocalKey:        rel.LocalKey,
			OtherKey:        rel.OtherKey,
			SecondKey:       rel.SecondKey,
			PivotTable:      rel.PivotTable,
			MorphType:       rel.MorphType,
			MorphID:         rel.MorphID,
			Pivot:           rel.Kind.Pivot(),
			Polymorphic:     rel.Kind.Polymorphic(),
			Embedded:        rel.Kind.Embedded(),
			Eager:           rel.Eager,
			ProxyIneligible: rel.ProxyIneligible,
			Dynamic:         rel.Dynamic,
		}
		if rel.Through != nil {
			rr.Through = rel.Through.Name()
		}
		switch {
		case rel.Kind.Single():
			rr.Cardinality = "single"
		case rel.Kind.Many():
			rr.Cardinality = "many"
		}
		switch {
		case rel.Kind.LocalOwner():
			rr.KeyOwnership = "local"
		case rel.Kind.ForeignOwner():
			rr.KeyOwnership = "foreign"
		}
		report.Relations = append(report.Relations, rr)
	}

	return report
}
