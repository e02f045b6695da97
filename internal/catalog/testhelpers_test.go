package catalog

func attrs(kv ...any) *Attributes {
	a := NewAttributes()
	for i := 0; i+1 < len(kv); i += 2 {
		var v Value
		switch x := kv[i+1].(type) {
		case string:
			v = String(x)
		case int:
			v = Int(int64(x))
		case float64:
			v = Number(x)
		case bool:
			v = Bool(x)
		case Value:
			v = x
		}
		a.Set(kv[i].(string), v)
	}
	return a
}

func producer(name string, materials ...*Material) *Producer {
	return &Producer{Name: name, Materials: materials}
}

func material(name string, filaments ...*Filament) *Material {
	return &Material{Name: name, Filaments: filaments}
}

func filament(name, id string, data *Attributes) *Filament {
	return &Filament{Name: name, ID: id, Data: data}
}

func cloneAll(ps []*Producer) []*Producer {
	out := make([]*Producer, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Clone())
	}
	return out
}

func equalTrees(a, b []*Producer) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name || len(a[i].Materials) != len(b[i].Materials) {
			return false
		}
		for j := range a[i].Materials {
			ma, mb := a[i].Materials[j], b[i].Materials[j]
			if ma.Name != mb.Name || len(ma.Filaments) != len(mb.Filaments) {
				return false
			}
			for k := range ma.Filaments {
				fa, fb := ma.Filaments[k], mb.Filaments[k]
				if fa.Name != fb.Name || fa.ID != fb.ID || !fa.Data.Equal(fb.Data) {
					return false
				}
			}
		}
	}
	return true
}
