// Command musgen regenerates the mus-go marshallers for the records kept in
// badger. Run it from the repository root or via go generate.
package main

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"

	musgen "github.com/mus-format/musgen-go/mus"
	genops "github.com/mus-format/musgen-go/options/generate"
	structops "github.com/mus-format/musgen-go/options/struct"
	typeops "github.com/mus-format/musgen-go/options/type"

	"github.com/mike-a-ellis/docqa/internal/catalog"
	"github.com/mike-a-ellis/docqa/internal/session"
)

const modulePath = "github.com/mike-a-ellis/docqa"

func main() {
	cwd, err := os.Getwd()
	if err != nil {
		panic(err)
	}
	// go generate runs in the package directory.
	if strings.HasSuffix(cwd, filepath.Join("internal", "session")) || strings.HasSuffix(cwd, filepath.Join("internal", "catalog")) {
		if err := os.Chdir(filepath.Join("..", "..")); err != nil {
			panic(err)
		}
	}

	micro := typeops.WithTimeUnit(typeops.Micro)

	g, err := musgen.NewCodeGenerator(
		genops.WithPkgPath(modulePath + "/internal/session"),
	)
	if err != nil {
		panic(err)
	}
	err = g.AddStruct(reflect.TypeFor[session.Message](),
		structops.WithField(),
		structops.WithField(),
		structops.WithField(micro))
	if err != nil {
		panic(err)
	}
	err = g.AddStruct(reflect.TypeFor[session.Session](),
		structops.WithField(),
		structops.WithField(),
		structops.WithField(micro),
		structops.WithField(micro),
		structops.WithField(),
		structops.WithField())
	if err != nil {
		panic(err)
	}
	bs, err := g.Generate()
	if err != nil {
		panic(err)
	}
	writeGenerated("internal/session", bs)

	g, err = musgen.NewCodeGenerator(
		genops.WithPkgPath(modulePath + "/internal/catalog"),
	)
	if err != nil {
		panic(err)
	}
	err = g.AddStruct(reflect.TypeFor[catalog.DocumentRecord](),
		structops.WithField(),
		structops.WithField(),
		structops.WithField(),
		structops.WithField(),
		structops.WithField(),
		structops.WithField(),
		structops.WithField(micro))
	if err != nil {
		panic(err)
	}
	err = g.AddStruct(reflect.TypeFor[catalog.TrainingRun](),
		structops.WithField(),
		structops.WithField(),
		structops.WithField(micro),
		structops.WithField(),
		structops.WithField(),
		structops.WithField())
	if err != nil {
		panic(err)
	}
	bs, err = g.Generate()
	if err != nil {
		panic(err)
	}
	writeGenerated("internal/catalog", bs)
}

func writeGenerated(dir string, bs []byte) {
	if err := os.WriteFile(filepath.Join(dir, "records_mus.gen.go"), bs, 0o644); err != nil {
		panic(err)
	}
}
