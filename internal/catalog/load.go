package catalog

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

type itemsFile struct {
	Items []Item `toml:"item" validate:"dive"`
}

// Load reads a TOML items file made of [[item]] tables.
func Load(path string, handlers ...Handler) (*Catalog, error) {
	var file itemsFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("read items file: %w", err)
	}
	return build(file, handlers)
}

// Parse is Load for an in-memory document.
func Parse(doc string, handlers ...Handler) (*Catalog, error) {
	var file itemsFile
	if _, err := toml.Decode(doc, &file); err != nil {
		return nil, fmt.Errorf("parse items: %w", err)
	}
	return build(file, handlers)
}

func build(file itemsFile, handlers []Handler) (*Catalog, error) {
	if err := validator.New().Struct(file); err != nil {
		return nil, fmt.Errorf("invalid items: %w", err)
	}
	return New(file.Items, handlers...)
}
