package catalog

import (
	"fmt"

	"github.com/open-filament/catalogbuilder/internal/foundation"
)

// Validate checks structural invariants of a tree: non-empty names and unique
// sibling names at every level.
func Validate(producers []*Producer) foundation.ValidationResult {
	result := foundation.Valid()
	seenProducers := make(map[string]bool, len(producers))
	for i, p := range producers {
		field := fmt.Sprintf("producers[%d]", i)
		if p == nil {
			result.Add(field, "nil", "producer must not be null")
			continue
		}
		checkName(&result, field, p.Name, seenProducers)
		seenMaterials := make(map[string]bool, len(p.Materials))
		for j, m := range p.Materials {
			mfield := fmt.Sprintf("%s.materials[%d]", field, j)
			if m == nil {
				result.Add(mfield, "nil", "material must not be null")
				continue
			}
			checkName(&result, mfield, m.Name, seenMaterials)
			seenFilaments := make(map[string]bool, len(m.Filaments))
			for k, f := range m.Filaments {
				ffield := fmt.Sprintf("%s.filaments[%d]", mfield, k)
				if f == nil {
					result.Add(ffield, "nil", "filament must not be null")
					continue
				}
				checkName(&result, ffield, f.Name, seenFilaments)
			}
		}
	}
	return result
}

func checkName(result *foundation.ValidationResult, field, name string, seen map[string]bool) {
	switch {
	case name == "":
		result.Add(field+".name", "required", "name must not be empty")
	case seen[name]:
		result.Add(field+".name", "duplicate", fmt.Sprintf("duplicate sibling name %q", name))
	default:
		seen[name] = true
	}
}
