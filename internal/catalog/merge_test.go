package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertFirstRunAppendsEverything(t *testing.T) {
	incoming := producer("Acme", material("PLA",
		filament("Red", "", attrs("color", "#f00")),
		filament("Blue", "", nil),
	))

	got := Upsert(nil, incoming)

	require.Len(t, got, 1)
	assert.Equal(t, "Acme", got[0].Name)
	require.Len(t, got[0].Materials[0].Filaments, 2)
	assert.Equal(t, "Red", got[0].Materials[0].Filaments[0].Name)
	assert.Equal(t, "Blue", got[0].Materials[0].Filaments[1].Name)
	assert.NotSame(t, incoming, got[0], "candidate must be copied, not aliased")
}

func TestUpsertPreservesExistingID(t *testing.T) {
	baseline := []*Producer{producer("Acme", material("PLA", filament("Red", "U1", attrs("color", "#f00"))))}
	incoming := producer("Acme", material("PLA", filament("Red", "", attrs("color", "#e00"))))

	got := Upsert(baseline, incoming)

	f := got[0].Materials[0].Filaments[0]
	assert.Equal(t, "U1", f.ID)
	v, ok := f.Data.Get("color")
	require.True(t, ok)
	assert.Equal(t, "#e00", v.Text())
}

func TestUpsertEmptyDataDoesNotErase(t *testing.T) {
	baseline := []*Producer{producer("Acme", material("PLA", filament("Red", "U1", attrs("color", "#f00"))))}

	got := Upsert(baseline, producer("Acme", material("PLA", filament("Red", "", nil))))
	assert.True(t, got[0].Materials[0].Filaments[0].Data.Equal(attrs("color", "#f00")))

	got = Upsert(got, producer("Acme", material("PLA", filament("Red", "", NewAttributes()))))
	assert.True(t, got[0].Materials[0].Filaments[0].Data.Equal(attrs("color", "#f00")))
}

func TestUpsertIncomingIDWins(t *testing.T) {
	baseline := []*Producer{producer("Acme", material("PLA", filament("Red", "U1", nil)))}
	got := Upsert(baseline, producer("Acme", material("PLA", filament("Red", "U2", nil))))
	assert.Equal(t, "U2", got[0].Materials[0].Filaments[0].ID)
}

func TestUpsertAppendOnly(t *testing.T) {
	baseline := []*Producer{
		producer("Acme",
			material("PLA", filament("Red", "U1", nil), filament("Green", "U2", nil)),
			material("PETG", filament("Clear", "U3", nil)),
		),
		producer("Other", material("ABS", filament("Black", "U4", nil))),
	}
	incoming := producer("Acme", material("PLA", filament("Blue", "", nil)))

	got := Upsert(baseline, incoming)

	require.Len(t, got, 2)
	acme := got[0]
	require.Len(t, acme.Materials, 2)
	pla := acme.Material("PLA")
	require.NotNil(t, pla)
	names := []string{}
	for _, f := range pla.Filaments {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"Red", "Green", "Blue"}, names)
	assert.NotNil(t, acme.Material("PETG"))
	assert.Equal(t, "U4", got[1].Materials[0].Filaments[0].ID)
}

func TestUpsertIdempotent(t *testing.T) {
	baseline := []*Producer{producer("Acme", material("PLA", filament("Red", "U1", attrs("d", 1.75))))}
	incoming := producer("Acme",
		material("PLA", filament("Red", "", attrs("d", 1.75, "temp", 210)), filament("Blue", "", nil)),
		material("TPU", filament("Flex", "", nil)),
	)

	once := Upsert(cloneAll(baseline), incoming)
	twice := Upsert(cloneAll(once), incoming)

	assert.True(t, equalTrees(once, twice))
}

func TestUpsertNewMaterialAndProducerAppendedAtEnd(t *testing.T) {
	baseline := []*Producer{producer("Acme", material("PLA"))}

	got := UpsertAll(baseline,
		producer("Acme", material("ASA", filament("Grey", "", nil))),
		producer("Beta", material("PLA", filament("White", "", nil))),
	)

	require.Len(t, got, 2)
	assert.Equal(t, "Beta", got[1].Name)
	assert.Equal(t, []string{"PLA", "ASA"}, []string{got[0].Materials[0].Name, got[0].Materials[1].Name})
}

func TestUpsertDoesNotAliasIncomingData(t *testing.T) {
	data := attrs("color", "#f00")
	baseline := []*Producer{producer("Acme", material("PLA", filament("Red", "U1", nil)))}

	got := Upsert(baseline, producer("Acme", material("PLA", filament("Red", "", data))))
	data.Set("color", String("#000"))

	v, _ := got[0].Materials[0].Filaments[0].Data.Get("color")
	assert.Equal(t, "#f00", v.Text())
}

func TestUpsertNilIncoming(t *testing.T) {
	baseline := []*Producer{producer("Acme")}
	assert.Equal(t, baseline, Upsert(baseline, nil))
}

func TestValidateDuplicates(t *testing.T) {
	tree := []*Producer{
		producer("Acme", material("PLA", filament("Red", "", nil), filament("Red", "", nil))),
		producer("Acme"),
		producer(""),
	}

	result := Validate(tree)

	require.False(t, result.Valid)
	codes := map[string]int{}
	for _, e := range result.Errors {
		codes[e.Code]++
	}
	assert.Equal(t, 2, codes["duplicate"])
	assert.Equal(t, 1, codes["required"])
	assert.Error(t, result.ToError())
}

func TestValidateOK(t *testing.T) {
	tree := []*Producer{producer("Acme", material("PLA", filament("Red", "", nil)))}
	assert.True(t, Validate(tree).Valid)
}

func TestCount(t *testing.T) {
	tree := []*Producer{
		producer("Acme", material("PLA", filament("Red", "U1", nil), filament("Blue", "", nil))),
		producer("Beta", material("PETG"), material("TPU", filament("Flex", "", nil))),
	}
	assert.Equal(t, Stats{Producers: 2, Materials: 3, Filaments: 3, WithoutID: 2}, Count(tree...))
}
