//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Papers groups targets that drive the paper store through the CLI.
type Papers mg.Namespace

// Search fetches papers for a topic into the local store.
func (Papers) Search(topic string) error {
	mg.Deps(Build)
	return sh.RunV(binPath(), "papers", "search", topic)
}

// Export writes every stored paper to papers/export.yaml.
func (Papers) Export() error {
	mg.Deps(Build)
	return sh.RunV(binPath(), "papers", "export", "--output", papersDir+"/export.yaml")
}

// Reindex rebuilds the paper ID index.
func (Papers) Reindex() error {
	mg.Deps(Build)
	return sh.RunV(binPath(), "index", "rebuild")
}

func binPath() string {
	return binDir + "/" + binName
}
