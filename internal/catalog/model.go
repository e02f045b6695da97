// Package catalog holds the persistent catalog model (producers, materials,
// filaments) and the two operations that evolve it between runs: Upsert,
// which merges a freshly authored producer into the baseline without ever
// dropping state, and Backfill, which mints identifiers for new filaments.
package catalog

// Producer is the top-level catalog entity, unique by exact Name among producers.
type Producer struct {
	Name      string
	Materials []*Material
}

// Material groups filaments of one material type under a producer.
type Material struct {
	Name      string
	Filaments []*Filament
}

// Filament is a leaf catalog entry. ID is empty until Backfill assigns one and
// never changes afterwards. Data is nil when no attributes were authored.
type Filament struct {
	Name string
	ID   string
	Data *Attributes
}

// Material returns the material with exactly the given name, or nil.
func (p *Producer) Material(name string) *Material {
	for _, m := range p.Materials {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// Filament returns the filament with exactly the given name, or nil.
func (m *Material) Filament(name string) *Filament {
	for _, f := range m.Filaments {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Find returns the producer with exactly the given name, or nil.
func Find(producers []*Producer, name string) *Producer {
	for _, p := range producers {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// Clone returns a deep copy of the producer.
func (p *Producer) Clone() *Producer {
	out := &Producer{Name: p.Name, Materials: make([]*Material, 0, len(p.Materials))}
	for _, m := range p.Materials {
		out.Materials = append(out.Materials, m.Clone())
	}
	return out
}

// Clone returns a deep copy of the material.
func (m *Material) Clone() *Material {
	out := &Material{Name: m.Name, Filaments: make([]*Filament, 0, len(m.Filaments))}
	for _, f := range m.Filaments {
		out.Filaments = append(out.Filaments, f.Clone())
	}
	return out
}

// Clone returns a deep copy of the filament.
func (f *Filament) Clone() *Filament {
	return &Filament{Name: f.Name, ID: f.ID, Data: f.Data.Clone()}
}

// Entry is one filament together with its ancestors, as visited by Walk.
type Entry struct {
	Producer *Producer
	Material *Material
	Filament *Filament
}

// Walk visits every filament in tree order. Returning false stops the walk.
func Walk(producers []*Producer, fn func(Entry) bool) {
	for _, p := range producers {
		for _, m := range p.Materials {
			for _, f := range m.Filaments {
				if !fn(Entry{Producer: p, Material: m, Filament: f}) {
					return
				}
			}
		}
	}
}

// Stats counts the entities of a tree.
type Stats struct {
	Producers int
	Materials int
	Filaments int
	WithoutID int
}

// Count returns the entity counts of producers.
func Count(producers ...*Producer) Stats {
	s := Stats{Producers: len(producers)}
	for _, p := range producers {
		s.Materials += len(p.Materials)
		for _, m := range p.Materials {
			s.Filaments += len(m.Filaments)
			for _, f := range m.Filaments {
				if f.ID == "" {
					s.WithoutID++
				}
			}
		}
	}
	return s
}
