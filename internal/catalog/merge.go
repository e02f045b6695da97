package catalog

// Upsert merges incoming into baseline and returns the updated slice.
//
// Entities are matched by exact name at each level. Unknown producers,
// materials and filaments are appended as deep copies. For a matched filament
// the name is taken from incoming, the ID only when incoming carries one, and
// Data only when incoming is non-empty. Nothing is ever removed.
func Upsert(baseline []*Producer, incoming *Producer) []*Producer {
	if incoming == nil {
		return baseline
	}
	existing := Find(baseline, incoming.Name)
	if existing == nil {
		return append(baseline, incoming.Clone())
	}
	for _, m := range incoming.Materials {
		upsertMaterial(existing, m)
	}
	return baseline
}

// UpsertAll folds every candidate into baseline in order.
func UpsertAll(baseline []*Producer, incoming ...*Producer) []*Producer {
	for _, p := range incoming {
		baseline = Upsert(baseline, p)
	}
	return baseline
}

func upsertMaterial(p *Producer, incoming *Material) {
	existing := p.Material(incoming.Name)
	if existing == nil {
		p.Materials = append(p.Materials, incoming.Clone())
		return
	}
	for _, f := range incoming.Filaments {
		upsertFilament(existing, f)
	}
}

func upsertFilament(m *Material, incoming *Filament) {
	existing := m.Filament(incoming.Name)
	if existing == nil {
		m.Filaments = append(m.Filaments, incoming.Clone())
		return
	}
	existing.Name = incoming.Name
	if incoming.ID != "" {
		existing.ID = incoming.ID
	}
	if incoming.Data.Len() > 0 {
		existing.Data = incoming.Data.Clone()
	}
}
