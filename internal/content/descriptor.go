package content

import (
	"github.com/open-filament/catalogbuilder/internal/catalog"
	"github.com/open-filament/catalogbuilder/internal/frontmatter"
	"github.com/open-filament/catalogbuilder/internal/render"
)

const (
	// IndexFile is the section index written once per producer and material.
	IndexFile = "_index.md"
	// DescriptorExt is the extension of filament descriptors.
	DescriptorExt = ".md"
	// PageType is the content type of filament descriptors.
	PageType = "filament"
	// AliasPrefix is the short-link prefix under which a filament page is
	// reachable by identifier.
	AliasPrefix = "/f/"
)

// ProducerIndex returns the index fields of a producer directory.
func ProducerIndex(producer string) frontmatter.Fields {
	return frontmatter.Fields{{Key: "title", Value: producer}}
}

// MaterialIndex returns the index fields of a material directory.
func MaterialIndex(producer, material string) frontmatter.Fields {
	return frontmatter.Fields{{Key: "title", Value: producer + " - " + material}}
}

// DescriptorFields builds the filament descriptor in its published key
// order. The fingerprint is added by the caller.
func DescriptorFields(producer, material string, f *catalog.Filament, assets []render.Asset) frontmatter.Fields {
	fields := frontmatter.Fields{
		{Key: "id", Value: f.ID},
		{Key: "title", Value: f.Name},
	}
	if thumb := render.Thumbnail(assets); thumb != "" {
		fields = append(fields, frontmatter.Field{Key: "thumbnail", Value: thumb})
	}
	if len(assets) > 0 {
		list := make([]frontmatter.Fields, 0, len(assets))
		for _, a := range assets {
			list = append(list, frontmatter.Fields{
				{Key: "name", Value: a.Name},
				{Key: "filename", Value: a.Filename},
			})
		}
		fields = append(fields, frontmatter.Field{Key: "assets", Value: list})
	}

	// An untyped nil renders as null in both formats; a nil *Attributes
	// would not.
	var data any
	if f.Data.Len() > 0 {
		data = f.Data
	}
	return append(fields,
		frontmatter.Field{Key: "data", Value: data},
		frontmatter.Field{Key: "aliases", Value: []string{AliasPrefix + f.ID}},
		frontmatter.Field{Key: "material", Value: material},
		frontmatter.Field{Key: "producer", Value: producer},
		frontmatter.Field{Key: "type", Value: PageType},
	)
}
