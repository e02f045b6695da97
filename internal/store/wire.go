package store

import (
	"fmt"

	"github.com/open-filament/catalogbuilder/internal/catalog"
)

// Pointer fields let decoding tell a missing key from a zero value.
type producerRecord struct {
	Name      *string           `json:"name"`
	Materials *[]materialRecord `json:"materials"`
}

type materialRecord struct {
	Name      *string           `json:"name"`
	Filaments *[]filamentRecord `json:"filaments"`
}

type filamentRecord struct {
	Name *string             `json:"name"`
	ID   *string             `json:"id"`
	Data *catalog.Attributes `json:"data"`
}

type producerOut struct {
	Name      string        `json:"name"`
	Materials []materialOut `json:"materials"`
}

type materialOut struct {
	Name      string        `json:"name"`
	Filaments []filamentOut `json:"filaments"`
}

type filamentOut struct {
	Name string              `json:"name"`
	ID   *string             `json:"id"`
	Data *catalog.Attributes `json:"data"`
}

func toWire(producers []*catalog.Producer) []producerOut {
	out := make([]producerOut, 0, len(producers))
	for _, p := range producers {
		po := producerOut{Name: p.Name, Materials: make([]materialOut, 0, len(p.Materials))}
		for _, m := range p.Materials {
			mo := materialOut{Name: m.Name, Filaments: make([]filamentOut, 0, len(m.Filaments))}
			for _, f := range m.Filaments {
				fo := filamentOut{Name: f.Name, Data: f.Data}
				if f.ID != "" {
					id := f.ID
					fo.ID = &id
				}
				mo.Filaments = append(mo.Filaments, fo)
			}
			po.Materials = append(po.Materials, mo)
		}
		out = append(out, po)
	}
	return out
}

func fromWire(records []producerRecord) ([]*catalog.Producer, string) {
	out := make([]*catalog.Producer, 0, len(records))
	for i, pr := range records {
		if pr.Name == nil {
			return nil, fieldPath(i, -1, -1) + ": missing name"
		}
		if pr.Materials == nil {
			return nil, fieldPath(i, -1, -1) + ": missing materials"
		}
		p := &catalog.Producer{Name: *pr.Name, Materials: make([]*catalog.Material, 0, len(*pr.Materials))}
		for j, mr := range *pr.Materials {
			if mr.Name == nil {
				return nil, fieldPath(i, j, -1) + ": missing name"
			}
			if mr.Filaments == nil {
				return nil, fieldPath(i, j, -1) + ": missing filaments"
			}
			m := &catalog.Material{Name: *mr.Name, Filaments: make([]*catalog.Filament, 0, len(*mr.Filaments))}
			for k, fr := range *mr.Filaments {
				if fr.Name == nil {
					return nil, fieldPath(i, j, k) + ": missing name"
				}
				f := &catalog.Filament{Name: *fr.Name, Data: fr.Data}
				if fr.ID != nil {
					f.ID = *fr.ID
				}
				m.Filaments = append(m.Filaments, f)
			}
			p.Materials = append(p.Materials, m)
		}
		out = append(out, p)
	}
	return out, ""
}

func fieldPath(p, m, f int) string {
	s := fmt.Sprintf("[%d]", p)
	if m >= 0 {
		s += fmt.Sprintf(".materials[%d]", m)
	}
	if f >= 0 {
		s += fmt.Sprintf(".filaments[%d]", f)
	}
	return s
}
